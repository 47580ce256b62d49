package backend

import "github.com/google/uuid"

// sessionNamespace seeds the deterministic external-id mapping. It must
// never change: the same external id has to land on the same internal id
// across restarts and across backends.
var sessionNamespace = uuid.NewSHA1(uuid.NameSpaceDNS, []byte("chronicle.session"))

// CanonicalSessionID maps a caller-supplied session id onto a stable
// internal UUID. Ids that already parse as UUIDs pass through in
// canonical form; everything else maps through NewSHA1 so the mapping
// is deterministic with no lookup table.
func CanonicalSessionID(externalID string) string {
	if id, err := uuid.Parse(externalID); err == nil {
		return id.String()
	}
	return uuid.NewSHA1(sessionNamespace, []byte(externalID)).String()
}
