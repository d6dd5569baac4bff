package secrets

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestResolveCachesRemoteSecret(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()
	resource := "projects/test/secrets/redis_password/versions/latest"
	client.values[resource] = "remote-secret"

	fetcher, err := NewFetcher(ctx, WithSecretManagerClient(client), WithProject("test"), WithLogger(zap.NewNop()), WithFallbackFile(""))
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	defer fetcher.Close()

	for i := 0; i < 2; i++ {
		got, err := fetcher.Resolve(ctx, "secret://redis_password")
		if err != nil {
			t.Fatalf("Resolve returned error: %v", err)
		}
		if got != "remote-secret" {
			t.Fatalf("expected remote-secret, got %s", got)
		}
	}
	if calls := client.callCount(resource); calls != 1 {
		t.Fatalf("expected remote fetch once, got %d", calls)
	}

	fetcher.Invalidate("secret://redis_password")
	if _, err := fetcher.ResolveSecret(ctx, "sm://redis_password"); err != nil {
		t.Fatalf("ResolveSecret returned error: %v", err)
	}
	if calls := client.callCount(resource); calls != 2 {
		t.Fatalf("expected refetch after invalidate, got %d calls", calls)
	}
}

func TestResolveFallsBackWhenSecretManagerUnavailable(t *testing.T) {
	ctx := context.Background()
	fallbackPath := filepath.Join(t.TempDir(), ".secrets.local")
	if err := os.WriteFile(fallbackPath, []byte("# local\nsm://internal_hmac=local-secret\n"), 0o600); err != nil {
		t.Fatalf("failed writing fallback file: %v", err)
	}

	client := newFakeSecretClient()
	client.errors["projects/test/secrets/internal_hmac/versions/latest"] = status.Error(codes.PermissionDenied, "denied")

	fetcher, err := NewFetcher(ctx, WithSecretManagerClient(client), WithProject("test"), WithFallbackFile(fallbackPath))
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	got, err := fetcher.Resolve(ctx, "secret://internal_hmac")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if got != "local-secret" {
		t.Fatalf("expected local-secret, got %s", got)
	}
}

func TestResolveDoesNotFallbackOnNotFound(t *testing.T) {
	ctx := context.Background()
	fallbackPath := filepath.Join(t.TempDir(), ".secrets.local")
	if err := os.WriteFile(fallbackPath, []byte("secret://missing=local\n"), 0o600); err != nil {
		t.Fatalf("failed writing fallback file: %v", err)
	}

	fetcher, _ := NewFetcher(ctx, WithSecretManagerClient(newFakeSecretClient()), WithProject("test"), WithFallbackFile(fallbackPath))
	if _, err := fetcher.Resolve(ctx, "secret://missing"); err == nil {
		t.Fatalf("expected not found to surface as an error")
	}
}

func TestResolveWithoutProjectUsesFallbackOnly(t *testing.T) {
	ctx := context.Background()
	fallbackPath := filepath.Join(t.TempDir(), ".secrets.local")
	if err := os.WriteFile(fallbackPath, []byte("secret://redis_password=local-pass\n"), 0o600); err != nil {
		t.Fatalf("failed writing fallback file: %v", err)
	}

	fetcher, err := NewFetcher(ctx, WithFallbackFile(fallbackPath))
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	got, err := fetcher.Resolve(ctx, "secret://redis_password")
	if err != nil || got != "local-pass" {
		t.Fatalf("unexpected fallback result %q %v", got, err)
	}
	if _, err := fetcher.Resolve(ctx, "https://example.com"); err == nil {
		t.Fatalf("expected unsupported scheme error")
	}
}

type fakeSecretClient struct {
	mu      sync.Mutex
	values  map[string]string
	errors  map[string]error
	counter map[string]int
}

func newFakeSecretClient() *fakeSecretClient {
	return &fakeSecretClient{
		values:  make(map[string]string),
		errors:  make(map[string]error),
		counter: make(map[string]int),
	}
}

func (f *fakeSecretClient) AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := req.GetName()
	f.counter[name]++
	if err, ok := f.errors[name]; ok && err != nil {
		return nil, err
	}
	if value, ok := f.values[name]; ok {
		return &secretmanagerpb.AccessSecretVersionResponse{
			Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
		}, nil
	}
	return nil, status.Error(codes.NotFound, "not found")
}

func (f *fakeSecretClient) Close() error {
	return nil
}

func (f *fakeSecretClient) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counter[name]
}
