package identity

import "testing"

func TestUserValidate(t *testing.T) {
	tests := []struct {
		name    string
		user    User
		wantErr bool
	}{
		{name: "valid", user: User{Username: "jdoe", Credential: "secret"}, wantErr: false},
		{name: "missing username", user: User{Credential: "secret"}, wantErr: true},
		{name: "missing credential", user: User{Username: "jdoe"}, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.user.Validate()
			if tc.wantErr && err == nil {
				t.Fatalf("Validate() error = nil, want error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("Validate() error = %v, want nil", err)
			}
		})
	}
}

func TestIDAllocatorNext(t *testing.T) {
	a := NewIDAllocator()

	first := a.Next()
	second := a.Next()
	third := a.Next()

	if first != 1 || second != 2 || third != 3 {
		t.Fatalf("Next() sequence = %d, %d, %d; want 1, 2, 3", first, second, third)
	}
}

func TestIDAllocatorConcurrent(t *testing.T) {
	a := NewIDAllocator()
	const n = 200

	seen := make(chan int64, n)
	done := make(chan struct{})
	for i := 0; i < n; i++ {
		go func() {
			seen <- a.Next()
		}()
	}
	go func() {
		for i := 0; i < n; i++ {
			<-seen
		}
		close(done)
	}()
	<-done

	if got := a.Next(); got != n+1 {
		t.Fatalf("final Next() = %d, want %d", got, n+1)
	}
}
