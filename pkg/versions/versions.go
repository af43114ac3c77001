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

// Package versions contains the version of fleetdeck and the
// build information injected by the linker
package versions

const (
	// Version is the version of fleetdeck
	Version = "0.4.0"
)

// BuildInfo is a struct containing all the info about the build
type BuildInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

var (
	// buildVersion injected during the build
	buildVersion = Version

	// buildCommit injected during the build
	buildCommit = "none"

	// buildDate injected during the build
	buildDate = "unknown"
)

// Info contains the build info of fleetdeck
var Info = BuildInfo{
	Version: buildVersion,
	Commit:  buildCommit,
	Date:    buildDate,
}
