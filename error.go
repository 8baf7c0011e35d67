// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package cas

import (
	"fmt"

	"github.com/grailbio/base/errors"
)

// Disposition reports an action's outcome as returned by the engine.
// Severity 0 is success, 1 carries warnings, and 2 or greater is
// failure. Fatal dispositions indicate that the session itself is
// damaged and should be abandoned.
type Disposition struct {
	Severity   int    `json:"severity"`
	Reason     string `json:"reason,omitempty"`
	Status     string `json:"status,omitempty"`
	StatusCode int    `json:"statusCode,omitempty"`
	Debug      string `json:"debug,omitempty"`
	Fatal      bool   `json:"fatal,omitempty"`
}

// OK tells whether the disposition reports success (possibly with
// warnings).
func (d Disposition) OK() bool {
	return d.Severity < 2
}

// String renders the disposition for logs.
func (d Disposition) String() string {
	if d.OK() {
		return "ok"
	}
	s := fmt.Sprintf("%s (reason=%s", d.Status, d.Reason)
	if d.StatusCode != 0 {
		s += fmt.Sprintf(", code=%d", d.StatusCode)
	}
	return s + ")"
}

// Reasons reported by the engine. The engine is free to introduce
// new reasons; unrecognized reasons map to errors.Other.
const (
	reasonNotFound      = "notFound"
	reasonExists        = "exists"
	reasonInvalidParam  = "invalidParameter"
	reasonTypeMismatch  = "typeMismatch"
	reasonPrecondition  = "failedPrecondition"
	reasonNotAuthorized = "notAuthorized"
	reasonNotLoaded     = "notLoaded"
	reasonUnknownAction = "unknownAction"
	reasonResourceLimit = "resourceLimit"
	reasonAborted       = "aborted"
)

// kind maps the engine's failure reason onto an error kind.
func (d Disposition) kind() errors.Kind {
	switch d.Reason {
	case reasonNotFound:
		return errors.NotExist
	case reasonExists:
		return errors.Exists
	case reasonInvalidParam, reasonTypeMismatch, reasonPrecondition:
		return errors.Invalid
	case reasonNotAuthorized:
		return errors.NotAllowed
	case reasonNotLoaded, reasonUnknownAction:
		return errors.NotSupported
	case reasonResourceLimit:
		return errors.OOM
	case reasonAborted:
		return errors.Canceled
	}
	return errors.Other
}

// Err converts a failed disposition into an error tagged with the
// action that produced it. Err returns nil for successful
// dispositions.
func (d Disposition) Err(action string) error {
	if d.OK() {
		return nil
	}
	status := d.Status
	if status == "" {
		status = "action failed"
	}
	args := []interface{}{d.kind(), fmt.Sprintf("%s: %s", action, status)}
	if d.Fatal {
		args = append(args, errors.Fatal)
	}
	if d.Debug != "" {
		args = append(args, errors.New(d.Debug))
	}
	return errors.E(args...)
}
