package saiRelay

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/saiset-co/sai-relay/types"
	"github.com/saiset-co/sai-relay/utils"
)

// Fingerprint derives the cache and dedup key for a request. The
// payload is serialized with sorted object keys, so two payloads that
// differ only in field order produce the same fingerprint.
func Fingerprint(endpoint string, payload interface{}) (string, error) {
	if endpoint == "" {
		return "", types.ErrEndpointEmpty
	}

	canonical, err := utils.MarshalCanonical(payload)
	if err != nil {
		return "", types.Errorf(types.ErrPayloadNotCanonical, "endpoint %s: %v", endpoint, err)
	}

	digest := sha256.Sum256(canonical)

	return endpoint + ":" + hex.EncodeToString(digest[:]), nil
}
