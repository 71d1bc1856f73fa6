package kubernetes

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hasirciogluhq/xdevice-sim/cmd/devicesim/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"
)

func secret(name string, labels map[string]string, data map[string][]byte) *corev1.Secret {
	return &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: "sim", Labels: labels},
		Data:       data,
	}
}

func TestSecretStoreLookup(t *testing.T) {
	clientset := fake.NewSimpleClientset(
		secret("dev-a", map[string]string{"devicesim-identity": "true"}, map[string][]byte{
			UsernameKey: []byte("alice"),
			PasswordKey: []byte("s3cret"),
		}),
		secret("dev-b", map[string]string{"devicesim-identity": "true", IDLabel: "42"}, map[string][]byte{
			UsernameKey: []byte("bob"),
			PasswordKey: []byte("hunter2"),
		}),
		secret("dev-c", map[string]string{"devicesim-identity": "true"}, map[string][]byte{
			UsernameKey: []byte("carol"),
		}),
		secret("unlabelled", nil, map[string][]byte{
			UsernameKey: []byte("mallory"),
			PasswordKey: []byte("x"),
		}),
	)

	ctx := context.Background()
	store, err := NewSecretStore(ctx, clientset, "sim", "devicesim-identity")
	require.NoError(t, err)
	defer store.Close()

	id, err := store.Lookup(ctx, "dev-a")
	require.NoError(t, err)
	assert.Equal(t, core.Identity{Username: "alice", Password: "s3cret"}, id)

	id, err = store.Lookup(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, "bob", id.Username)

	_, err = store.Lookup(ctx, "dev-c")
	assert.ErrorContains(t, err, PasswordKey)

	_, err = store.Lookup(ctx, "unlabelled")
	assert.True(t, errors.Is(err, core.ErrIdentityNotFound))
}

func TestSecretStoreSyncHonorsContext(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	clientset.PrependReactor("list", "secrets", func(k8stesting.Action) (bool, runtime.Object, error) {
		return true, nil, errors.New("apiserver unreachable")
	})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	store, err := NewSecretStore(ctx, clientset, "sim", "devicesim-identity")
	require.Error(t, err)
	assert.Nil(t, store)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestSecretStoreCloseTwice(t *testing.T) {
	store, err := NewSecretStore(context.Background(), fake.NewSimpleClientset(), "sim", "devicesim-identity")
	require.NoError(t, err)
	store.Close()
	assert.NotPanics(t, store.Close)
}
