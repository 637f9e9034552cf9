package nasc

import (
	"fmt"
	"reflect"
)

// ServiceProvider registers a group of related bean definitions.
//
// Example:
//
//	type StorageProvider struct{}
//
//	func (p *StorageProvider) Register(factory *Nasc) error {
//	    return factory.RegisterBeanDefinition("store", &registry.BeanDefinition{
//	        Type:          reflect.TypeOf(&FileStore{}),
//	        DestroyMethod: "Close",
//	    })
//	}
type ServiceProvider interface {
	Register(factory *Nasc) error
}

// BootableProvider is an optional interface for providers that need a boot
// phase. Boot runs after all providers have been registered, so it may look
// up beans contributed by other providers.
//
// Example:
//
//	func (p *StorageProvider) Boot(factory *Nasc) error {
//	    store, err := nasc.GetBeanAs[*FileStore](factory, "store")
//	    if err != nil {
//	        return err
//	    }
//	    return store.Open()
//	}
type BootableProvider interface {
	ServiceProvider
	Boot(factory *Nasc) error
}

// DeferredProvider is an optional interface for providers that register
// conditionally.
type DeferredProvider interface {
	ServiceProvider
	ShouldRegister(factory *Nasc) bool
}

// providerEntry tracks a registered provider.
type providerEntry struct {
	provider ServiceProvider
	booted   bool
}

// RegisterProvider calls the provider's Register method immediately. A
// second provider of the same type is ignored, as is a DeferredProvider
// that declines.
func (n *Nasc) RegisterProvider(provider ServiceProvider) error {
	if provider == nil {
		return fmt.Errorf("provider cannot be nil")
	}

	if deferred, ok := provider.(DeferredProvider); ok && !deferred.ShouldRegister(n) {
		n.log.Debug().Str("provider", reflect.TypeOf(provider).String()).Msg("deferred provider declined registration")
		return nil
	}

	providerType := reflect.TypeOf(provider)
	n.providersMu.Lock()
	for _, entry := range n.providers {
		if reflect.TypeOf(entry.provider) == providerType {
			n.providersMu.Unlock()
			return nil
		}
	}
	n.providersMu.Unlock()

	if err := provider.Register(n); err != nil {
		return fmt.Errorf("provider %v registration failed: %w", providerType, err)
	}

	n.providersMu.Lock()
	n.providers = append(n.providers, &providerEntry{provider: provider})
	n.providersMu.Unlock()
	n.log.Debug().Str("provider", providerType.String()).Int("definitions", n.defs.Count()).Msg("registered service provider")
	return nil
}

// BootProviders calls Boot on every registered BootableProvider that has not
// been booted yet, in registration order.
func (n *Nasc) BootProviders() error {
	n.providersMu.Lock()
	entries := append([]*providerEntry(nil), n.providers...)
	n.providersMu.Unlock()

	for _, entry := range entries {
		if entry.booted {
			continue
		}
		if bootable, ok := entry.provider.(BootableProvider); ok {
			if err := bootable.Boot(n); err != nil {
				return fmt.Errorf("provider %T boot failed: %w", entry.provider, err)
			}
		}
		entry.booted = true
	}
	return nil
}

// GetProviders returns the registered providers in registration order.
func (n *Nasc) GetProviders() []ServiceProvider {
	n.providersMu.Lock()
	defer n.providersMu.Unlock()
	providers := make([]ServiceProvider, len(n.providers))
	for i, entry := range n.providers {
		providers[i] = entry.provider
	}
	return providers
}
