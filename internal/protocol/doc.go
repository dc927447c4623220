// Package protocol owns the telemetry wire contract.
//
// Ownership boundary:
// - packet model and payload ownership
// - fixed header + endpoint table + payload codec
// - packet validation against a schema catalog
// - typed payload extraction and text rendering
//
// Wire layout (byte order fixed per deployment by Codec.Order):
//
//	type_id u32 | payload_size u32 | timestamp u64 | endpoint_count u32 |
//	endpoint_count x u32 | payload_size bytes
package protocol
