package core

import (
	"fmt"
	"strconv"
	"time"
)

// Direction is the direction of a TFTP transfer as seen from the server
type Direction string

const (
	// DirectionUpload is a client write (WRQ) into the TFTP root
	DirectionUpload Direction = "upload"
	// DirectionDownload is a client read (RRQ) from the TFTP root
	DirectionDownload Direction = "download"
)

// IsValid checks if the direction is known
func (d Direction) IsValid() bool {
	return d == DirectionUpload || d == DirectionDownload
}

// RequestType returns the TFTP opcode name for the direction
func (d Direction) RequestType() string {
	switch d {
	case DirectionUpload:
		return "WRQ"
	case DirectionDownload:
		return "RRQ"
	default:
		return "UNKNOWN"
	}
}

// Completes reports whether a close of kind k finishes a transfer in direction d.
// Writes only finish on a write-close and reads only on a read-close.
func (d Direction) Completes(k CloseKind) bool {
	switch d {
	case DirectionUpload:
		return k == CloseWrite
	case DirectionDownload:
		return k == CloseNoWrite
	default:
		return false
	}
}

// DirectionFromRequestType maps a TFTP opcode name to a direction
func DirectionFromRequestType(opcode string) (Direction, error) {
	switch opcode {
	case "WRQ":
		return DirectionUpload, nil
	case "RRQ":
		return DirectionDownload, nil
	default:
		return "", fmt.Errorf("unknown TFTP request type %q", opcode)
	}
}

// CloseKind distinguishes write-completion from read-completion
type CloseKind string

const (
	// CloseWrite is a close of a file that was opened for writing
	CloseWrite CloseKind = "CLOSE_WRITE"
	// CloseNoWrite is a close of a file that was opened read-only
	CloseNoWrite CloseKind = "CLOSE_NOWRITE"
)

// TransferStatus is the verdict of a finalized transfer
type TransferStatus string

const (
	TransferSuccess TransferStatus = "success"
	TransferFailed  TransferStatus = "failed"
)

// IsValid checks if the status is known
func (s TransferStatus) IsValid() bool {
	return s == TransferSuccess || s == TransferFailed
}

// Failure reasons reported by the request parser
const (
	ReasonConnectionRefused = "connection refused"
	ReasonNegativeAck       = "negative acknowledgment"
)

// RequestEvent is a read or write request recognized in the daemon log
type RequestEvent struct {
	CorrelationID string
	Direction     Direction
	Filename      string
	ClientIP      string
	Matched       bool
	SeenAt        time.Time
}

// CloseEvent is a close notification for a file in the watched directory
type CloseEvent struct {
	Filename string
	Kind     CloseKind
	SeenAt   time.Time
}

// ErrorEvent is a transfer error reported in the daemon log
type ErrorEvent struct {
	CorrelationID string
	Reason        string
	SeenAt        time.Time
}

// PendingTransfer is a matched request/close pair waiting out its grace period
type PendingTransfer struct {
	Filename      string
	CorrelationID string
	Direction     Direction
	ClientIP      string
	Size          *int64
	ClosedAt      time.Time
	FinalizeAt    time.Time
}

// TransferRecord is a finalized transfer. It is passed by value and never
// modified once built; persistence assigns ID on its own copy.
type TransferRecord struct {
	ID            int64          `json:"id"`
	Filename      string         `json:"filename"`
	ClientIP      string         `json:"client_ip"`
	Size          *int64         `json:"file_size"`
	Direction     Direction      `json:"transfer_type"`
	Status        TransferStatus `json:"status"`
	FailureReason string         `json:"failure_reason,omitempty"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	OccurredAt    time.Time      `json:"timestamp"`
}

// Finalize builds the record for a pending transfer. A nil err means success.
func (p PendingTransfer) Finalize(err *ErrorEvent, at time.Time) TransferRecord {
	rec := TransferRecord{
		Filename:      p.Filename,
		ClientIP:      p.ClientIP,
		Size:          p.Size,
		Direction:     p.Direction,
		Status:        TransferSuccess,
		CorrelationID: p.CorrelationID,
		OccurredAt:    at,
	}
	if err != nil {
		rec.Status = TransferFailed
		rec.FailureReason = err.Reason
	}
	return rec
}

// WithID returns a copy of the record carrying the persisted identifier
func (r TransferRecord) WithID(id int64) TransferRecord {
	r.ID = id
	return r
}

// Failed reports whether the transfer failed
func (r TransferRecord) Failed() bool {
	return r.Status == TransferFailed
}

// SizeString formats the size for humans, "N/A" when unknown
func (r TransferRecord) SizeString() string {
	if r.Size == nil {
		return "N/A"
	}
	return strconv.FormatInt(*r.Size, 10)
}

// Int64Ptr returns a pointer to v
func Int64Ptr(v int64) *int64 {
	return &v
}
