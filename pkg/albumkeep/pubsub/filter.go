package pubsub

// FilterPolicy is a conjunction of per-attribute allow-list membership
// tests. A subscription declaring a policy receives a message iff, for
// every attribute name in the policy, the message carries that attribute
// with one of the allowed values. An empty (or nil) policy matches every
// message.
//
// Policies are plain data so that new subscriptions and filters are
// configuration, not code changes.
type FilterPolicy map[string][]string

// Matches reports whether the message attributes satisfy the policy.
func (p FilterPolicy) Matches(attrs map[string]string) bool {
	for name, allowed := range p {
		value, ok := attrs[name]
		if !ok {
			return false
		}
		found := false
		for _, a := range allowed {
			if a == value {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
