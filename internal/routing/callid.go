package routing

// Call-id resolution. Transfer-adjacent requests can carry the call id
// in several places depending on which side initiated them: the JSON
// body, the browser session, or (as a last resort, when exactly one call
// is live) the call store itself. Earlier iterations buried this chain
// inside handlers; it is kept here as an explicit ordered list of pure
// sources so each can be tested on its own.

// CallIDSource yields a candidate call id, or ok=false when it has none.
type CallIDSource func() (string, bool)

// ResolveCallID walks the sources in order and returns the first hit.
func ResolveCallID(sources ...CallIDSource) (string, bool) {
	for _, src := range sources {
		if src == nil {
			continue
		}
		if id, ok := src(); ok && id != "" {
			return id, true
		}
	}
	return "", false
}

// FromValue adapts an already-extracted value (e.g. a JSON field or the
// session's current call id).
func FromValue(id string) CallIDSource {
	return func() (string, bool) { return id, id != "" }
}

// FromStore falls back to the single live call in the store. With zero
// or several live calls there is no safe guess, so it yields nothing.
type callLister interface {
	CallIDs() []string
}

func FromStore(s callLister) CallIDSource {
	return func() (string, bool) {
		ids := s.CallIDs()
		if len(ids) != 1 {
			return "", false
		}
		return ids[0], true
	}
}
