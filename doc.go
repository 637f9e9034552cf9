// Package nasc is a bean factory: it turns declarative bean definitions into
// a live, wired object graph.
//
// Nasc (Old Irish: "Link" or "Bond") owns object identity per scope,
// resolves dependencies between beans (including reference cycles between
// singletons) and runs every creation through an ordered post-processor
// pipeline.
//
// # Features
//
//   - Singleton, prototype and custom scopes
//   - Parent/child definitions with merged property values
//   - Constructor, factory-function, factory-method and supplier creation
//   - Autowiring by name, by type and by constructor
//   - Early references for circular singleton references
//   - FactoryBeans ("&name" returns the factory itself)
//   - Post-processors around instantiation and initialization
//   - Init and destroy callbacks, destroyed in dependency order
//   - Service providers and a TOML definition loader (package loader)
//
// # Quick Start
//
//	factory := nasc.New()
//
//	factory.RegisterBeanDefinition("repo", &registry.BeanDefinition{
//	    Type: reflect.TypeOf(&Repository{}),
//	})
//	factory.RegisterBeanDefinition("service", &registry.BeanDefinition{
//	    Type:       reflect.TypeOf(&Service{}),
//	    Properties: registry.NewProperties().Set("repo", registry.Ref{Name: "repo"}),
//	})
//
//	svc, err := nasc.GetBeanAs[*Service](factory, "service")
//
// # Properties
//
// Struct fields are addressed as properties by their lower-camel name
// ("Repo" becomes "repo") or by a `bean:"name"` tag. `bean:"-"` hides a
// field. Beans may implement PropertyAccessor to take over property
// access entirely.
//
// # Scopes
//
// Singletons are created once per factory and destroyed by
// DestroySingletons. Prototypes are created on every lookup and never
// tracked. Custom scopes are registered with RegisterScope:
//
//	scope := nasc.NewSimpleScope()
//	factory.RegisterScope("request", scope)
//	defer scope.Dispose()
//
// # Concurrency
//
// All lookups are safe for concurrent use. Singleton creation is serialized
// by one factory-wide lock; concurrent lookups of the same singleton yield
// the same instance. Init callbacks, aware callbacks and post-processors of
// singletons run while that lock is held. Lookups they make through the
// public API succeed for singletons that already exist; creating another
// singleton from inside them blocks forever. Express such dependencies as
// properties, constructor arguments or dependsOn instead.
package nasc
