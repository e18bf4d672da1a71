// Package core defines the domain model shared by the tftpwatch pipeline.
//
// # Pipeline
//
// Two independent signal sources feed the correlation engine:
//   - filesystem close events (CloseEvent) from the TFTP root directory
//   - request and error events (RequestEvent, ErrorEvent) parsed from the
//     TFTP daemon's log stream
//
// The correlation engine pairs them into PendingTransfer values which, after a
// grace period, finalize into immutable TransferRecord values. The anomaly
// engine consumes TransferRecords and raises Alerts.
//
// Types in this package carry no behavior beyond validation and formatting;
// state is owned by the engines in the correlate and detect packages.
package core
