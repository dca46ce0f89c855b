// Command authflow signs a user in to an OAuth 2.0 authorization server
// using the authorization code flow with PKCE, and manages the resulting
// session token.
package main

import "os"

func main() {
	os.Exit(execute(os.Args[1:]))
}
