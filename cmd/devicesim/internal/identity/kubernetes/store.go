package kubernetes

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hasirciogluhq/xdevice-sim/cmd/devicesim/internal/core"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/informers"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/cache"
)

const (
	// IDLabel overrides the secret name as the lookup id.
	IDLabel = "devicesim-identity-id"

	UsernameKey = "username"
	PasswordKey = "password"
)

// SecretStore resolves ids against Secrets carrying "<label>=true",
// kept current by a shared informer.
type SecretStore struct {
	store    cache.Store
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewSecretStore starts the informer and waits for its first sync. It gives
// up when ctx is done, leaving nothing running.
func NewSecretStore(ctx context.Context, clientset kubernetes.Interface, namespace, label string) (*SecretStore, error) {
	factory := informers.NewSharedInformerFactoryWithOptions(clientset, 10*time.Minute,
		informers.WithNamespace(namespace),
		informers.WithTweakListOptions(func(opts *metav1.ListOptions) {
			opts.LabelSelector = label + "=true"
		}),
	)
	secretInformer := factory.Core().V1().Secrets().Informer()

	// Start the informer in the background
	s := &SecretStore{
		store:  secretInformer.GetStore(),
		stopCh: make(chan struct{}),
	}
	factory.Start(s.stopCh)
	if !cache.WaitForCacheSync(ctx.Done(), secretInformer.HasSynced) {
		s.Close()
		factory.Shutdown()
		return nil, fmt.Errorf("sync secrets cache: %w", context.Cause(ctx))
	}
	return s, nil
}

func (s *SecretStore) Lookup(ctx context.Context, id string) (core.Identity, error) {
	for _, obj := range s.store.List() {
		secret, ok := obj.(*corev1.Secret)
		if !ok {
			continue
		}

		secretID := secret.Name
		if v, ok := secret.Labels[IDLabel]; ok && v != "" {
			secretID = v
		}
		if secretID != id {
			continue
		}

		user, ok := secret.Data[UsernameKey]
		if !ok {
			return core.Identity{}, fmt.Errorf("secret %s/%s missing %s", secret.Namespace, secret.Name, UsernameKey)
		}
		pass, ok := secret.Data[PasswordKey]
		if !ok {
			return core.Identity{}, fmt.Errorf("secret %s/%s missing %s", secret.Namespace, secret.Name, PasswordKey)
		}
		return core.Identity{Username: string(user), Password: string(pass)}, nil
	}

	return core.Identity{}, fmt.Errorf("secret for id '%s': %w", id, core.ErrIdentityNotFound)
}

// Close stops the informer.
func (s *SecretStore) Close() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}
