// Package kube builds Kubernetes clients that act with the identity of the
// caller whose request the gateway is serving.
package kube

import (
	"errors"
	"fmt"
	"time"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// ErrNoToken is returned when a client is requested without a bearer token.
var ErrNoToken = errors.New("no bearer token")

// Config selects the cluster the gateway talks to.
type Config struct {
	// Kubeconfig is an explicit kubeconfig path. Empty means in-cluster,
	// falling back to the default loading rules ($KUBECONFIG, ~/.kube/config).
	Kubeconfig string
	Timeout    time.Duration
}

// Provider hands out clientsets bound to a caller's token.
type Provider interface {
	ForToken(token string) (kubernetes.Interface, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(token string) (kubernetes.Interface, error)

func (f ProviderFunc) ForToken(token string) (kubernetes.Interface, error) { return f(token) }

// Factory builds per-caller clientsets from a base REST config. Only the
// cluster location and TLS settings of the base config are used; its
// credentials never are.
type Factory struct {
	base *rest.Config
}

// NewFactory resolves the base REST config described by cfg.
func NewFactory(cfg Config) (*Factory, error) {
	base, err := restConfig(cfg.Kubeconfig)
	if err != nil {
		return nil, err
	}
	if cfg.Timeout > 0 {
		base.Timeout = cfg.Timeout
	}
	return &Factory{base: base}, nil
}

// NewFactoryForConfig uses base as is.
func NewFactoryForConfig(base *rest.Config) *Factory {
	return &Factory{base: base}
}

func restConfig(kubeconfig string) (*rest.Config, error) {
	if kubeconfig == "" {
		if cfg, err := rest.InClusterConfig(); err == nil {
			return cfg, nil
		}
	}
	loader := clientcmd.NewDefaultClientConfigLoadingRules()
	if kubeconfig != "" {
		loader.ExplicitPath = kubeconfig
	}
	cfg, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loader, nil).ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("build rest config: %w", err)
	}
	return cfg, nil
}

// Host returns the API server URL.
func (f *Factory) Host() string { return f.base.Host }

// ForToken returns a clientset authenticating with token only.
func (f *Factory) ForToken(token string) (kubernetes.Interface, error) {
	if token == "" {
		return nil, ErrNoToken
	}
	cfg := rest.AnonymousClientConfig(f.base)
	cfg.BearerToken = token
	cs, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("new clientset: %w", err)
	}
	return cs, nil
}
