/*
Package authsdk is the client side of the tokenkeeper session service, and
the home of the JSON types both sides speak.

# SDKClient vs Session

  - SDKClient: unauthenticated calls (login, validate, health)
  - Session: a logged-in token pair that rotates itself when the access
    token is about to expire

	client := authsdk.NewSDKClient("https://auth.example.com")

	session, err := client.Login(ctx, authsdk.LoginRequest{Login: "alice", Password: pw})
	if authsdk.IsForbidden(err) {
		// account deactivated
	}

	token, err := session.Token(ctx) // refreshes when needed
	defer session.Logout(ctx)

A downstream service checks incoming bearer tokens with Validate:

	res, err := client.Validate(ctx, bearer)
	if authsdk.IsUnauthorized(err) {
		// reject
	}

# Refresh tokens are single use

Every refresh returns a new pair and revokes the old one. Two goroutines
refreshing the same Session are serialised by the Session itself; two
separate Sessions built from the same tokens will race, and the loser
gets a 403.

# Errors

Non-2xx responses come back as *APIError. The server never says why a
token was rejected, so callers only get the status and a generic code.
*/
package authsdk
