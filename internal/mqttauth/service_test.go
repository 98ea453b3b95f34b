package mqttauth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestService_EndToEnd(t *testing.T) {
	db := testDB(t)
	repo := NewAccountRepository(db)
	svc := newTestService(t, repo, Options{})

	account, err := svc.Provision(context.Background(), "device-01", "dev-uuid-1")
	if err != nil {
		t.Fatalf("Provision() error = %v", err)
	}

	if account.Password == "" {
		t.Fatal("provisioned account must carry the plaintext password")
	}
	if account.Password == account.PasswordHash {
		t.Fatal("plaintext password must differ from the stored hash")
	}
	if account.ClientID == "" {
		t.Fatal("provisioned account must carry a client id")
	}

	clientID := account.ClientID

	if d := svc.Authenticate(context.Background(), "device-01", account.Password, clientID); !d.Allow {
		t.Error("correct credentials should authenticate")
	}
	if d := svc.Authenticate(context.Background(), "device-01", "wrong", clientID); d.Allow {
		t.Error("wrong password should deny")
	}
	if d := svc.Authenticate(context.Background(), "ghost", account.Password, clientID); d.Allow {
		t.Error("unknown username should deny")
	}

	telemetry := fmt.Sprintf("sensors/%s/telemetry", clientID)
	command := fmt.Sprintf("sensors/%s/command", clientID)

	if d := svc.Authorize(context.Background(), "device-01", telemetry, ActionPublish, 1); !d.Allow {
		t.Error("publish to own telemetry topic should be allowed")
	}
	if d := svc.Authorize(context.Background(), "device-01", command, ActionPublish, 0); d.Allow {
		t.Error("publish to command topic should be denied (subscribe-only)")
	}
	if d := svc.Authorize(context.Background(), "device-01", command, ActionSubscribe, 0); !d.Allow {
		t.Error("subscribe to own command topic should be allowed")
	}
	if d := svc.Authorize(context.Background(), "device-01", "sensors/OTHER/telemetry", ActionPublish, 1); d.Allow {
		t.Error("publish to another device's topic should be denied")
	}
	if d := svc.Authorize(context.Background(), "ghost", telemetry, ActionPublish, 1); d.Allow {
		t.Error("unknown username should deny authorization")
	}
}

func TestService_EnforceClientID(t *testing.T) {
	db := testDB(t)
	repo := NewAccountRepository(db)

	account := seedAccount(t, db, "device-01", "secret", "AAAA0001")

	relaxed := newTestService(t, repo, Options{EnforceClientID: false})
	if d := relaxed.Authenticate(context.Background(), "device-01", account.Password, "SOMETHING_ELSE"); !d.Allow {
		t.Error("client id mismatch should be ignored when enforcement is off")
	}

	strict := newTestService(t, repo, Options{EnforceClientID: true})
	if d := strict.Authenticate(context.Background(), "device-01", account.Password, "SOMETHING_ELSE"); d.Allow {
		t.Error("client id mismatch should deny when enforcement is on")
	}
	if d := strict.Authenticate(context.Background(), "device-01", account.Password, "AAAA0001"); !d.Allow {
		t.Error("matching client id should authenticate under enforcement")
	}
}

func TestService_Provision_DuplicateUsername(t *testing.T) {
	db := testDB(t)
	repo := NewAccountRepository(db)
	svc := newTestService(t, repo, Options{})

	if _, err := svc.Provision(context.Background(), "device-01", ""); err != nil {
		t.Fatalf("first Provision() error = %v", err)
	}

	if _, err := svc.Provision(context.Background(), "device-01", ""); !errors.Is(err, ErrUsernameExists) {
		t.Errorf("second Provision() error = %v, want ErrUsernameExists", err)
	}

	count, err := repo.Count(context.Background())
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 1 {
		t.Errorf("account count = %d after duplicate attempt, want 1", count)
	}
}

func TestService_Provision_BlankUsername(t *testing.T) {
	db := testDB(t)
	svc := newTestService(t, NewAccountRepository(db), Options{})

	if _, err := svc.Provision(context.Background(), "", ""); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("Provision(\"\") error = %v, want ErrInvalidRequest", err)
	}
}

func TestService_Provision_ConcurrentUniqueness(t *testing.T) {
	if testing.Short() {
		t.Skip("concurrent provisioning is slow (argon2id per account)")
	}

	db := testDB(t)
	repo := NewAccountRepository(db)
	svc := newTestService(t, repo, Options{DecisionTimeout: 30 * time.Second})

	const n = 50

	var wg sync.WaitGroup
	accounts := make([]*Account, n)
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			accounts[i], errs[i] = svc.Provision(context.Background(), fmt.Sprintf("device-%03d", i), "")
		}(i)
	}
	wg.Wait()

	seen := make(map[string]string)
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("Provision(device-%03d) error = %v", i, errs[i])
		}
		a := accounts[i]
		if a.Password == "" || a.Password == a.PasswordHash {
			t.Errorf("device-%03d: plaintext password missing or equal to hash", i)
		}
		if prev, dup := seen[a.ClientID]; dup {
			t.Fatalf("client id %s allocated to both %s and %s", a.ClientID, prev, a.Username)
		}
		seen[a.ClientID] = a.Username
	}
}

// stubRepo drives the provisioner through collision and failure paths.
type stubRepo struct {
	createErrs  []error // consumed one per Create call
	createCalls int
	lookupErr   error
	account     *Account
}

func (s *stubRepo) Create(_ context.Context, account *Account) error {
	s.createCalls++
	if len(s.createErrs) > 0 {
		err := s.createErrs[0]
		s.createErrs = s.createErrs[1:]
		return err
	}
	account.ID = "mqa-stub"
	return nil
}

func (s *stubRepo) GetByUsername(_ context.Context, _ string) (*Account, error) {
	if s.lookupErr != nil {
		return nil, s.lookupErr
	}
	if s.account == nil {
		return nil, ErrAccountNotFound
	}
	return s.account, nil
}

func (s *stubRepo) GetByClientID(_ context.Context, _ string) (*Account, error) {
	return s.GetByUsername(context.Background(), "")
}

func (s *stubRepo) UsernameExists(_ context.Context, _ string) (bool, error) {
	return false, nil
}

func (s *stubRepo) ClientIDExists(_ context.Context, _ string) (bool, error) {
	return false, nil
}

func (s *stubRepo) Count(_ context.Context) (int, error) {
	return 0, nil
}

func TestService_Provision_CollisionOnPersistRetries(t *testing.T) {
	repo := &stubRepo{createErrs: []error{ErrClientIDExists, ErrClientIDExists}}
	svc := newTestService(t, repo, Options{ClientIDAttempts: 5})

	account, err := svc.Provision(context.Background(), "device-01", "")
	if err != nil {
		t.Fatalf("Provision() error = %v", err)
	}
	if account == nil || account.Password == "" {
		t.Fatal("successful retry should return a complete account")
	}
	if repo.createCalls != 3 {
		t.Errorf("Create called %d times, want 3 (two collisions then success)", repo.createCalls)
	}
}

func TestService_Provision_ExhaustsRetryBudget(t *testing.T) {
	repo := &stubRepo{
		createErrs: []error{ErrClientIDExists, ErrClientIDExists, ErrClientIDExists},
	}
	svc := newTestService(t, repo, Options{ClientIDAttempts: 3})

	if _, err := svc.Provision(context.Background(), "device-01", ""); !errors.Is(err, ErrClientIDExhausted) {
		t.Errorf("Provision() error = %v, want ErrClientIDExhausted", err)
	}
}

func TestService_FailClosedOnRepositoryError(t *testing.T) {
	repo := &stubRepo{lookupErr: errors.New("storage offline")}
	svc := newTestService(t, repo, Options{})

	if d := svc.Authenticate(context.Background(), "device-01", "pw", "X"); d.Allow {
		t.Error("repository failure must deny authentication")
	}
	if d := svc.Authorize(context.Background(), "device-01", "sensors/X/telemetry", ActionPublish, 0); d.Allow {
		t.Error("repository failure must deny authorization")
	}
}

// slowRepo blocks lookups until the context expires.
type slowRepo struct{ stubRepo }

func (s *slowRepo) GetByUsername(ctx context.Context, _ string) (*Account, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestService_DecisionTimeoutDenies(t *testing.T) {
	svc := newTestService(t, &slowRepo{}, Options{DecisionTimeout: 20 * time.Millisecond})

	start := time.Now()
	if d := svc.Authenticate(context.Background(), "device-01", "pw", "X"); d.Allow {
		t.Error("timed-out decision must deny")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("decision took %v, should be bounded by the timeout", elapsed)
	}
}

func TestService_DeviceInfo(t *testing.T) {
	db := testDB(t)
	repo := NewAccountRepository(db)
	svc := newTestService(t, repo, Options{})

	seedAccount(t, db, "device-01", "secret", "AAAA0001")

	account, err := svc.DeviceInfo(context.Background(), "AAAA0001")
	if err != nil {
		t.Fatalf("DeviceInfo() error = %v", err)
	}
	if account.Username != "device-01" {
		t.Errorf("Username = %q, want device-01", account.Username)
	}

	if _, err := svc.DeviceInfo(context.Background(), "GHOST123"); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("DeviceInfo(unknown) error = %v, want ErrAccountNotFound", err)
	}
	if _, err := svc.DeviceInfo(context.Background(), ""); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("DeviceInfo(\"\") error = %v, want ErrInvalidRequest", err)
	}
}
