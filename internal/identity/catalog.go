package identity

// Endpoint is one regional entry for a catalog service.
type Endpoint struct {
	Region    string `json:"region"`
	PublicURL string `json:"publicURL"`
}

// Service is a single service catalog record: the name it is registered
// under, its OpenStack service type, and its regional endpoints.
type Service struct {
	Name      string     `json:"name"`
	Type      string     `json:"type"`
	Endpoints []Endpoint `json:"endpoints"`
}

// Catalog is the list of API endpoints an authenticated identity may
// call. It is produced once per session and never mutated afterwards,
// so concurrent readers need no synchronization.
type Catalog []Service

// EndpointsFor returns the public URLs registered under serviceName for
// the given region. Region comparison is case-sensitive: "ord" does not
// match "ORD".
func (c Catalog) EndpointsFor(serviceName, region string) []string {
	var urls []string
	for _, svc := range c {
		if svc.Name != serviceName {
			continue
		}
		for _, ep := range svc.Endpoints {
			if ep.Region == region {
				urls = append(urls, ep.PublicURL)
			}
		}
	}
	return urls
}
