package orchestrator

const (
	// labelManagedBy marks every object this orchestrator owns. The
	// teardown diff only ever considers objects carrying it.
	labelManagedBy   = "app.kubernetes.io/managed-by"
	managedByCapstan = "capstan"

	// labelCapability carries the capability id an object belongs to.
	labelCapability = "capstan.io/capability"
)

// WorkloadName returns the name shared by a capability's deployment,
// service, and autoscaler objects.
func WorkloadName(id string) string {
	return "capstan-" + id
}

// managedLabels returns the labels applied to every object owned by
// the orchestrator for the given capability.
func managedLabels(id string) map[string]string {
	return map[string]string{
		labelManagedBy:  managedByCapstan,
		labelCapability: id,
	}
}

// managedSelector is the label selector matching all capstan-owned
// objects.
const managedSelector = labelManagedBy + "=" + managedByCapstan
