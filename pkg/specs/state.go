/*
Copyright © contributors to fleetdeck.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.

SPDX-License-Identifier: Apache-2.0
*/

package specs

import (
	"path"

	apiv1 "github.com/fleetdeck/fleetdeck/api/v1"
)

// StateFiles locates the state of a service kept on the primary host:
// the deploy lock directory and the audit log
type StateFiles struct {
	// Directory is the run directory, relative to the home of the remote
	// user unless absolute
	Directory string

	Service string
}

// NewStateFiles returns the state files of the deployment
func NewStateFiles(deployment *apiv1.Deployment) StateFiles {
	return StateFiles{
		Directory: deployment.RunDirectory,
		Service:   deployment.Service,
	}
}

// LockDirectory is the directory whose existence is the deploy lock
func (f StateFiles) LockDirectory() string {
	return path.Join(f.Directory, "lock-"+f.Service)
}

// LockDetails is the file describing the holder of the deploy lock
func (f StateFiles) LockDetails() string {
	return path.Join(f.LockDirectory(), "details.json")
}

// AuditLog is the append-only file of the boot events
func (f StateFiles) AuditLog() string {
	return path.Join(f.Directory, f.Service+"-audit.log")
}

// EnsureDirectory creates the run directory
func (f StateFiles) EnsureDirectory() Command {
	return New("mkdir", "-p", f.Directory)
}

// CreateLock creates the lock directory, failing if it already exists
func (f StateFiles) CreateLock() Command {
	return New("mkdir", f.LockDirectory())
}

// LockExists succeeds when the lock directory exists
func (f StateFiles) LockExists() Command {
	return New("test", "-d", f.LockDirectory())
}

// WriteLockDetails stores the passed content as the lock details
func (f StateFiles) WriteLockDetails(content string) Command {
	return New("printf", "%s\n", content).WriteTo(f.LockDetails())
}

// ReadLockDetails prints the lock details, or nothing when the lock
// doesn't exist
func (f StateFiles) ReadLockDetails() Command {
	return Any(New("cat", f.LockDetails()), New("true"))
}

// RemoveLock deletes the lock directory
func (f StateFiles) RemoveLock() Command {
	return New("rm", "-rf", f.LockDirectory())
}

// AppendAudit appends one line to the audit log
func (f StateFiles) AppendAudit(line string) Command {
	return All(
		f.EnsureDirectory(),
		New("printf", "%s\n", line).AppendTo(f.AuditLog()),
	)
}

// ReadAudit prints the audit log, or nothing when it doesn't exist
func (f StateFiles) ReadAudit() Command {
	return Any(New("cat", f.AuditLog()), New("true"))
}

// ArchiveAudit renames the audit log, adding the passed suffix
func (f StateFiles) ArchiveAudit(suffix string) Command {
	return Any(
		New("test", "!", "-f", f.AuditLog()),
		New("mv", f.AuditLog(), f.AuditLog()+"."+suffix),
	)
}
