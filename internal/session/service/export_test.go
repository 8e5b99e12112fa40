package service

// SetVerifyPassword replaces the password check used by Login until the
// returned restore func is called.
func SetVerifyPassword(fn func(password, encodedHash string) error) (restore func()) {
	prev := verifyPassword
	verifyPassword = fn
	return func() { verifyPassword = prev }
}
