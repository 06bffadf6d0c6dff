package auth

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the shortest room password the vault will hash.
const MinPasswordLength = 8

// ErrPasswordTooShort is returned by Hash for passwords under MinPasswordLength.
var ErrPasswordTooShort = errors.New("password must be at least 8 characters")

// PasswordVault hashes and verifies room passwords with bcrypt. The work is
// CPU-heavy, so it runs on a bounded pool of workers instead of the caller's
// goroutine; Hash and Verify block until a worker picks the job up or the
// context is cancelled.
type PasswordVault struct {
	cost  int
	tasks chan func()
}

// NewPasswordVault starts a vault with the given number of workers.
func NewPasswordVault(workers int) *PasswordVault {
	if workers <= 0 {
		workers = 1
	}
	v := &PasswordVault{
		cost:  bcrypt.DefaultCost,
		tasks: make(chan func()),
	}
	for i := 0; i < workers; i++ {
		go v.worker()
	}
	return v
}

func (v *PasswordVault) worker() {
	for task := range v.tasks {
		task()
	}
}

// Hash returns the bcrypt hash of password, or ErrPasswordTooShort without
// consuming a worker slot when the password is too short.
func (v *PasswordVault) Hash(ctx context.Context, password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", ErrPasswordTooShort
	}

	type result struct {
		hash string
		err  error
	}
	out := make(chan result, 1)

	task := func() {
		hashed, err := bcrypt.GenerateFromPassword([]byte(password), v.cost)
		out <- result{hash: string(hashed), err: err}
	}

	select {
	case v.tasks <- task:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	select {
	case r := <-out:
		return r.hash, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Verify reports whether password matches hash. A mismatch is a normal false
// result, never an error.
func (v *PasswordVault) Verify(ctx context.Context, password, hash string) (bool, error) {
	out := make(chan bool, 1)

	task := func() {
		out <- bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
	}

	select {
	case v.tasks <- task:
	case <-ctx.Done():
		return false, ctx.Err()
	}

	select {
	case ok := <-out:
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Close stops the workers. Callers must not use the vault afterwards.
func (v *PasswordVault) Close() {
	close(v.tasks)
}
