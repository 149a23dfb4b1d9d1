// Component type taxonomy and per-category profiles
package topology

// ComponentType identifies the kind of infrastructure a node models.
type ComponentType string

// Edge and traffic types.
const (
	TypeClient       ComponentType = "client"
	TypeDNS          ComponentType = "dns"
	TypeCDN          ComponentType = "cdn"
	TypeLoadBalancer ComponentType = "load_balancer"
	TypeAPIGateway   ComponentType = "api_gateway"
	TypeWAF          ComponentType = "waf"
)

// Compute types.
const (
	TypeAppServer    ComponentType = "app_server"
	TypeWebServer    ComponentType = "web_server"
	TypeMicroservice ComponentType = "microservice"
	TypeServerless   ComponentType = "serverless"
	TypeWorker       ComponentType = "worker"
)

// Storage types.
const (
	TypeDatabase      ComponentType = "database"
	TypeNoSQLDatabase ComponentType = "nosql_database"
	TypeCache         ComponentType = "cache"
	TypeObjectStorage ComponentType = "object_storage"
	TypeSearchEngine  ComponentType = "search_engine"
)

// Messaging types.
const (
	TypeQueue  ComponentType = "queue"
	TypePubSub ComponentType = "pub_sub"
	TypeStream ComponentType = "stream"
)

// Technique and infrastructure primitives.
const (
	TypeRateLimiter    ComponentType = "rate_limiter"
	TypeCircuitBreaker ComponentType = "circuit_breaker"
	TypeServiceMesh    ComponentType = "service_mesh"
	TypeMonitoring     ComponentType = "monitoring"
)

// Annotation types drawn on the canvas. They never take part in simulation.
const (
	TypeText      ComponentType = "text"
	TypeRectangle ComponentType = "rectangle"
	TypeCircle    ComponentType = "circle"
	TypeArrow     ComponentType = "arrow"
)

// FallbackType replaces unknown types when a persisted graph is decoded.
const FallbackType = TypeAppServer

// Category groups component types that share simulation behavior.
type Category string

const (
	CategoryEdge       Category = "edge"
	CategoryCompute    Category = "compute"
	CategoryStorage    Category = "storage"
	CategoryMessaging  Category = "messaging"
	CategoryTechnique  Category = "technique"
	CategoryAnnotation Category = "annotation"
)

// Profile holds the static simulation characteristics of a component type.
type Profile struct {
	Category      Category
	BaseLatencyMs float64
	BaseErrorRate float64
	Defaults      Config
}

var profiles = map[ComponentType]Profile{
	TypeClient:       {Category: CategoryEdge, BaseLatencyMs: 0, Defaults: Config{Instances: 1, TrafficRPS: 1000}},
	TypeDNS:          {Category: CategoryEdge, BaseLatencyMs: 2, BaseErrorRate: 0.0001, Defaults: Config{Capacity: 50000, Instances: 2, CostPerHour: 0.05}},
	TypeCDN:          {Category: CategoryEdge, BaseLatencyMs: 8, BaseErrorRate: 0.0001, Defaults: Config{Capacity: 20000, Instances: 1, CostPerHour: 0.3, CacheTTLSeconds: 3600}},
	TypeLoadBalancer: {Category: CategoryEdge, BaseLatencyMs: 2, BaseErrorRate: 0.0001, Defaults: Config{Capacity: 10000, Instances: 1, CostPerHour: 0.025}},
	TypeAPIGateway:   {Category: CategoryEdge, BaseLatencyMs: 5, BaseErrorRate: 0.0005, Defaults: Config{Capacity: 5000, Instances: 1, CostPerHour: 0.1}},
	TypeWAF:          {Category: CategoryEdge, BaseLatencyMs: 3, BaseErrorRate: 0.0002, Defaults: Config{Capacity: 8000, Instances: 1, CostPerHour: 0.06}},

	TypeAppServer:    {Category: CategoryCompute, BaseLatencyMs: 40, BaseErrorRate: 0.001, Defaults: Config{Capacity: 1000, Instances: 1, MinInstances: 1, MaxInstances: 10, CostPerHour: 0.1, MaxConnections: 200}},
	TypeWebServer:    {Category: CategoryCompute, BaseLatencyMs: 20, BaseErrorRate: 0.001, Defaults: Config{Capacity: 2000, Instances: 1, MinInstances: 1, MaxInstances: 10, CostPerHour: 0.08, MaxConnections: 500}},
	TypeMicroservice: {Category: CategoryCompute, BaseLatencyMs: 25, BaseErrorRate: 0.001, Defaults: Config{Capacity: 800, Instances: 2, MinInstances: 1, MaxInstances: 20, CostPerHour: 0.05, MaxConnections: 150}},
	TypeServerless:   {Category: CategoryCompute, BaseLatencyMs: 60, BaseErrorRate: 0.002, Defaults: Config{Capacity: 500, Instances: 1, AutoScale: true, MinInstances: 1, MaxInstances: 100, CostPerHour: 0.02, MaxConnections: 100}},
	TypeWorker:       {Category: CategoryCompute, BaseLatencyMs: 100, BaseErrorRate: 0.001, Defaults: Config{Capacity: 300, Instances: 1, MinInstances: 1, MaxInstances: 10, CostPerHour: 0.05, MaxConnections: 50}},

	TypeDatabase:      {Category: CategoryStorage, BaseLatencyMs: 15, BaseErrorRate: 0.0005, Defaults: Config{Capacity: 1500, Instances: 1, MinInstances: 1, MaxInstances: 5, CostPerHour: 0.4, ReplicationFactor: 1, ReplicationStrategy: ReplicationSync, MaxConnections: 100}},
	TypeNoSQLDatabase: {Category: CategoryStorage, BaseLatencyMs: 8, BaseErrorRate: 0.0005, Defaults: Config{Capacity: 4000, Instances: 1, MinInstances: 1, MaxInstances: 10, CostPerHour: 0.35, ReplicationFactor: 1, ReplicationStrategy: ReplicationAsync, MaxConnections: 300}},
	TypeCache:         {Category: CategoryStorage, BaseLatencyMs: 1, BaseErrorRate: 0.0001, Defaults: Config{Capacity: 20000, Instances: 1, MinInstances: 1, MaxInstances: 6, CostPerHour: 0.15, CacheTTLSeconds: 300, MaxConnections: 1000}},
	TypeObjectStorage: {Category: CategoryStorage, BaseLatencyMs: 50, BaseErrorRate: 0.0001, Defaults: Config{Capacity: 3500, Instances: 1, CostPerHour: 0.03, Replication: true, ReplicationFactor: 3, ReplicationStrategy: ReplicationAsync, MaxConnections: 1000}},
	TypeSearchEngine:  {Category: CategoryStorage, BaseLatencyMs: 30, BaseErrorRate: 0.0005, Defaults: Config{Capacity: 1200, Instances: 1, MinInstances: 1, MaxInstances: 6, CostPerHour: 0.3, ReplicationFactor: 1, ReplicationStrategy: ReplicationAsync, MaxConnections: 200}},

	TypeQueue:  {Category: CategoryMessaging, BaseLatencyMs: 5, BaseErrorRate: 0.0001, Defaults: Config{Capacity: 10000, Instances: 1, CostPerHour: 0.05, QueueCapacity: 100000, ConsumerRate: 5000}},
	TypePubSub: {Category: CategoryMessaging, BaseLatencyMs: 8, BaseErrorRate: 0.0001, Defaults: Config{Capacity: 15000, Instances: 1, CostPerHour: 0.08, QueueCapacity: 200000, ConsumerRate: 8000}},
	TypeStream: {Category: CategoryMessaging, BaseLatencyMs: 10, BaseErrorRate: 0.0001, Defaults: Config{Capacity: 50000, Instances: 3, CostPerHour: 0.2, Partitions: 6, QueueCapacity: 1000000, ConsumerRate: 20000}},

	TypeRateLimiter:    {Category: CategoryTechnique, BaseLatencyMs: 1, Defaults: Config{Capacity: 10000, Instances: 1, CostPerHour: 0.02, RateLimiting: true}},
	TypeCircuitBreaker: {Category: CategoryTechnique, BaseLatencyMs: 1, Defaults: Config{Capacity: 10000, Instances: 1, CostPerHour: 0.01, CircuitBreaker: true}},
	TypeServiceMesh:    {Category: CategoryTechnique, BaseLatencyMs: 2, Defaults: Config{Capacity: 20000, Instances: 2, CostPerHour: 0.05, Retry: true}},
	TypeMonitoring:     {Category: CategoryTechnique, BaseLatencyMs: 0, Defaults: Config{Capacity: 50000, Instances: 1, CostPerHour: 0.03}},

	TypeText:      {Category: CategoryAnnotation},
	TypeRectangle: {Category: CategoryAnnotation},
	TypeCircle:    {Category: CategoryAnnotation},
	TypeArrow:     {Category: CategoryAnnotation},
}

// Known reports whether t belongs to the closed type set.
func Known(t ComponentType) bool {
	_, ok := profiles[t]
	return ok
}

// ProfileOf returns the profile for t, or the fallback profile for unknown types.
func ProfileOf(t ComponentType) Profile {
	if p, ok := profiles[t]; ok {
		return p
	}
	return profiles[FallbackType]
}

// CategoryOf returns the behavioral category of t.
func CategoryOf(t ComponentType) Category {
	return ProfileOf(t).Category
}

// DefaultConfig returns the configuration a freshly added node of type t starts with.
func DefaultConfig(t ComponentType) Config {
	cfg := ProfileOf(t).Defaults
	if len(cfg.Regions) > 0 {
		cfg.Regions = append([]string(nil), cfg.Regions...)
	}
	return cfg
}

// Types returns all known component types.
func Types() []ComponentType {
	out := make([]ComponentType, 0, len(profiles))
	for t := range profiles {
		out = append(out, t)
	}
	return out
}

// IsAnnotation reports whether t is a canvas-only shape.
func (t ComponentType) IsAnnotation() bool { return CategoryOf(t) == CategoryAnnotation }

// IsStorage reports whether t stores data.
func (t ComponentType) IsStorage() bool { return CategoryOf(t) == CategoryStorage }

// IsMessaging reports whether t is a queue, pub/sub topic or stream.
func (t ComponentType) IsMessaging() bool { return CategoryOf(t) == CategoryMessaging }

// IsDatabase reports whether t is a primary datastore (not a cache or blob store).
func (t ComponentType) IsDatabase() bool {
	return t == TypeDatabase || t == TypeNoSQLDatabase || t == TypeSearchEngine
}
