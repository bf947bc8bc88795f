// Package report implements persistence for the provisioning run Report.
//
// The FileRepository stores the latest report as protobuf JSON of a
// structpb.Struct, so it can be read by any protobuf-aware tool, and exposes a
// Repository interface that the status server depends on.
package report
