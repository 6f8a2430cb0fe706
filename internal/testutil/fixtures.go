package testutil

import (
	"time"
)

// TestFixtures provides test data generators
type TestFixtures struct{}

// NewTestFixtures creates a new test fixtures helper
func NewTestFixtures() *TestFixtures {
	return &TestFixtures{}
}

// RandomString generates a random string of specified length
func RandomString(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)
	seed := time.Now().UnixNano()
	for i := range b {
		seed = seed*1103515245 + 12345 // Simple LCG
		idx := int(seed % int64(len(charset)))
		if idx < 0 {
			idx = -idx
		}
		b[i] = charset[idx]
	}
	return string(b)
}

// RandomUsername generates a random username
func RandomUsername() string {
	return "testuser_" + RandomString(8)
}

// RandomEmail generates a random email address
func RandomEmail() string {
	return "test_" + RandomString(8) + "@example.com"
}

// TestAccountData represents test account data
type TestAccountData struct {
	Username string
	Email    string
	Password string
	Role     string
}

// NewTestAccount creates test editor account data
func (f *TestFixtures) NewTestAccount() TestAccountData {
	return TestAccountData{
		Username: RandomUsername(),
		Email:    RandomEmail(),
		Password: "testpassword123",
		Role:     "editor",
	}
}

// TestClaimData represents a test tile claim rectangle
type TestClaimData struct {
	X0, Y0, X1, Y1 int
}

// NewTestClaim creates a small test claim rectangle
func (f *TestFixtures) NewTestClaim() TestClaimData {
	return TestClaimData{X0: 1, Y0: 2, X1: 3, Y1: 4}
}
