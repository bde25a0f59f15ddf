package audit

import (
	"fmt"
	"sync"
)

var (
	// globalWriter is the default audit writer.
	globalWriter Writer = NopWriter{}
	globalMu     sync.RWMutex

	// enabled tracks whether audit logging is active.
	enabled bool
)

// Init installs the global audit writer. Passing nil disables audit
// logging (the global writer falls back to NopWriter).
func Init(w Writer) error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if w == nil {
		globalWriter = NopWriter{}
		enabled = false
		return nil
	}

	globalWriter = w
	enabled = true
	return nil
}

// InitFile installs a FileWriter rooted at path as the global audit
// writer. An empty path disables audit logging.
func InitFile(path string) error {
	if path == "" {
		return Init(nil)
	}

	w, err := NewFileWriter(path)
	if err != nil {
		return err
	}

	return Init(w)
}

// Close closes the global audit writer and resets it to NopWriter.
func Close() error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalWriter != nil {
		err := globalWriter.Close()
		globalWriter = NopWriter{}
		enabled = false
		return err
	}
	return nil
}

// Enabled reports whether a non-nop writer is installed.
func Enabled() bool {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return enabled
}

// Log writes an audit event through the global writer.
func Log(event *Event) error {
	globalMu.RLock()
	w := globalWriter
	globalMu.RUnlock()

	return w.Write(event)
}

// MustLog writes an audit event and wraps any failure so the caller can
// fail the operation it was auditing: audit failure is operation failure.
func MustLog(event *Event) error {
	if err := Log(event); err != nil {
		return fmt.Errorf("audit log failed: %w", err)
	}
	return nil
}

// LogCACreated logs a CA creation event.
func LogCACreated(caPath, subject, algorithm string, success bool) error {
	result := ResultSuccess
	if !success {
		result = ResultFailure
	}

	event := NewEvent(EventCACreated, result).
		WithObject(Object{
			Type:    "ca",
			Path:    caPath,
			Subject: subject,
		}).
		WithContext(Context{
			Algorithm: algorithm,
		})

	return MustLog(event)
}

// LogCALoaded logs a CA load event.
func LogCALoaded(caPath, subject string, success bool) error {
	result := ResultSuccess
	if !success {
		result = ResultFailure
	}

	event := NewEvent(EventCALoaded, result).
		WithObject(Object{
			Type:    "ca",
			Path:    caPath,
			Subject: subject,
		})

	return MustLog(event)
}

// LogKeyAccessed logs a key access event.
func LogKeyAccessed(caPath string, success bool, reason string) error {
	result := ResultSuccess
	if !success {
		result = ResultFailure
	}

	event := NewEvent(EventKeyAccessed, result).
		WithObject(Object{
			Type: "key",
			Path: caPath,
		}).
		WithContext(Context{
			Reason: reason,
		})

	return MustLog(event)
}

// LogCertIssued logs a certificate issuance event.
func LogCertIssued(caPath, serial, subject, profile, algorithm string, success bool) error {
	result := ResultSuccess
	if !success {
		result = ResultFailure
	}

	event := NewEvent(EventCertIssued, result).
		WithObject(Object{
			Type:    "certificate",
			Serial:  serial,
			Subject: subject,
		}).
		WithContext(Context{
			CA:        caPath,
			Profile:   profile,
			Algorithm: algorithm,
		})

	return MustLog(event)
}

// LogCertRevoked logs a certificate revocation event.
func LogCertRevoked(caPath, serial, subject, reason string, success bool) error {
	result := ResultSuccess
	if !success {
		result = ResultFailure
	}

	event := NewEvent(EventCertRevoked, result).
		WithObject(Object{
			Type:    "certificate",
			Serial:  serial,
			Subject: subject,
		}).
		WithContext(Context{
			CA:     caPath,
			Reason: reason,
		})

	return MustLog(event)
}

// LogCRLGenerated logs a CRL generation event.
func LogCRLGenerated(caPath string, revokedCount int, success bool) error {
	result := ResultSuccess
	if !success {
		result = ResultFailure
	}

	event := NewEvent(EventCRLGenerated, result).
		WithObject(Object{
			Type: "crl",
			Path: caPath,
		}).
		WithContext(Context{
			CA:     caPath,
			Reason: fmt.Sprintf("%d certificates revoked", revokedCount),
		})

	return MustLog(event)
}

// LogAuthFailed logs an authentication failure event.
func LogAuthFailed(caPath, reason string) error {
	event := NewEvent(EventAuthFailed, ResultFailure).
		WithObject(Object{
			Type: "ca",
			Path: caPath,
		}).
		WithContext(Context{
			CA:     caPath,
			Reason: reason,
		})

	return MustLog(event)
}

// LogCARotated logs a CA key/certificate rotation event.
func LogCARotated(caPath, versionID, profile string, crossSigned bool) error {
	reason := fmt.Sprintf("version=%s, profile=%s", versionID, profile)
	if crossSigned {
		reason += ", cross-signed=true"
	}

	event := NewEvent(EventCARotated, ResultSuccess).
		WithObject(Object{
			Type: "ca",
			Path: caPath,
		}).
		WithContext(Context{
			CA:      caPath,
			Profile: profile,
			Reason:  reason,
		})

	return MustLog(event)
}
