package factory

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/hasirciogluhq/xdevice-sim/cmd/devicesim/internal/config"
	"github.com/hasirciogluhq/xdevice-sim/cmd/devicesim/internal/core"
	"github.com/hasirciogluhq/xdevice-sim/cmd/devicesim/internal/identity/filesystem"
	"github.com/hasirciogluhq/xdevice-sim/cmd/devicesim/internal/identity/kubernetes"
	"github.com/hasirciogluhq/xdevice-sim/cmd/devicesim/internal/identity/memory"
	"github.com/hasirciogluhq/xdevice-sim/cmd/devicesim/internal/logger"

	k8s "k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// kubeSyncTimeout bounds the initial secrets cache sync.
const kubeSyncTimeout = 30 * time.Second

// ValidatorFactory creates identity validators based on configuration
type ValidatorFactory struct {
	cfg *config.Config
}

// NewValidatorFactory creates a new validator factory
func NewValidatorFactory(cfg *config.Config) *ValidatorFactory {
	return &ValidatorFactory{cfg: cfg}
}

// Create returns the validator the handshake uses. The returned close
// function releases store resources and is never nil.
func (f *ValidatorFactory) Create(ctx context.Context) (core.IdentityValidator, func(), error) {
	switch f.cfg.Validator {
	case config.ValidatorAccept:
		logger.Info("Accepting any delivered credential")
		return core.AlwaysAccept{}, func() {}, nil
	case config.ValidatorLookup:
		store, closeFn, err := f.createStore(ctx)
		if err != nil {
			return nil, nil, err
		}
		return core.LookupBacked{Store: store}, closeFn, nil
	default:
		return nil, nil, fmt.Errorf("unknown validator: %s", f.cfg.Validator)
	}
}

func (f *ValidatorFactory) createStore(ctx context.Context) (core.IdentityStore, func(), error) {
	switch f.cfg.IdentityStore {
	case config.StoreMemory:
		logger.Info("Creating static identity store")
		store, err := memory.NewStore(f.cfg.StaticIdentities)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create static identity store: %w", err)
		}
		return store, func() {}, nil
	case config.StoreFile:
		logger.Info("Creating file identity store", "path", f.cfg.IdentityFile)
		return filesystem.NewFileStore(f.cfg.IdentityFile), func() {}, nil
	case config.StoreKubernetes:
		return f.createKubernetesStore(ctx)
	default:
		return nil, nil, fmt.Errorf("unknown identity store: %s", f.cfg.IdentityStore)
	}
}

func (f *ValidatorFactory) createKubernetesStore(ctx context.Context) (core.IdentityStore, func(), error) {
	logger.Info("Creating Kubernetes identity store",
		"namespace", f.cfg.Namespace,
		"label", f.cfg.IdentitySecretLabel,
		"kubeconfig", f.cfg.KubeConfigPath,
		"context", f.cfg.KubeContext)

	restConfig, err := f.restConfig()
	if err != nil {
		return nil, nil, err
	}

	clientset, err := k8s.NewForConfig(restConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create kubernetes client: %w", err)
	}

	syncCtx, cancel := context.WithTimeout(ctx, kubeSyncTimeout)
	defer cancel()
	store, err := kubernetes.NewSecretStore(syncCtx, clientset, f.cfg.Namespace, f.cfg.IdentitySecretLabel)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("Kubernetes identity store synced")
	return store, store.Close, nil
}

func (f *ValidatorFactory) restConfig() (*rest.Config, error) {
	kubeconfig := f.cfg.KubeConfigPath
	if kubeconfig == "" {
		if home := os.Getenv("HOME"); home != "" {
			if _, err := os.Stat(home + "/.kube/config"); err == nil {
				kubeconfig = home + "/.kube/config"
			}
		}
	}

	configOverrides := &clientcmd.ConfigOverrides{}
	if f.cfg.KubeContext != "" {
		configOverrides.CurrentContext = f.cfg.KubeContext
	}

	// Try kubeconfig first, then fall back to in-cluster config
	if kubeconfig != "" {
		restConfig, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
			&clientcmd.ClientConfigLoadingRules{ExplicitPath: kubeconfig},
			configOverrides,
		).ClientConfig()
		if err == nil {
			return restConfig, nil
		}
		logger.Warn("Failed to load kubeconfig, will try in-cluster config", "error", err)
	}

	restConfig, err := rest.InClusterConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to build kubernetes config (tried kubeconfig and in-cluster): %w", err)
	}
	return restConfig, nil
}
