package stage

// Health summarizes the readiness of a stage dependency or preflight check.
type Health struct {
	Name   string
	Ready  bool
	Detail string
}

// Healthy constructs a ready Health record.
func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

// Unhealthy constructs an unhealthy Health record with context detail.
func Unhealthy(name, detail string) Health {
	return Health{Name: name, Ready: false, Detail: detail}
}

// Worst returns the first unhealthy record, or a healthy record named name.
func Worst(name string, checks ...Health) Health {
	for _, check := range checks {
		if !check.Ready {
			return check
		}
	}
	return Healthy(name)
}
