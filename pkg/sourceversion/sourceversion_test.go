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

package sourceversion

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Static resolver", func() {
	It("returns the passed version", func(ctx SpecContext) {
		version, err := StaticResolver{Version: "v42"}.Resolve(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(version.String()).To(Equal("v42"))
	})

	It("refuses empty versions", func(ctx SpecContext) {
		_, err := StaticResolver{}.Resolve(ctx)
		Expect(err).To(MatchError(ErrEmptyVersion))
	})
})

var _ = Describe("Git resolver", func() {
	var (
		dir    string
		commit string
	)

	write := func(name, content string) {
		Expect(os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600)).To(Succeed())
	}

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		repository, err := git.PlainInit(dir, false)
		Expect(err).ToNot(HaveOccurred())

		write("Dockerfile", "FROM alpine\n")
		worktree, err := repository.Worktree()
		Expect(err).ToNot(HaveOccurred())
		_, err = worktree.Add("Dockerfile")
		Expect(err).ToNot(HaveOccurred())

		hash, err := worktree.Commit("initial", &git.CommitOptions{
			Author: &object.Signature{Name: "alice", Email: "alice@example.com", When: time.Now()},
		})
		Expect(err).ToNot(HaveOccurred())
		commit = hash.String()
	})

	It("uses the commit of a clean worktree", func(ctx SpecContext) {
		version, err := GitResolver{Path: dir}.Resolve(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(version.String()).To(Equal(commit))
	})

	It("finds the repository from a subdirectory", func(ctx SpecContext) {
		Expect(os.MkdirAll(filepath.Join(dir, "config"), 0o750)).To(Succeed())
		version, err := GitResolver{Path: filepath.Join(dir, "config")}.Resolve(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(version.String()).To(HavePrefix(commit))
	})

	It("marks uncommitted changes with a stable digest", func(ctx SpecContext) {
		write("Dockerfile", "FROM debian\n")

		first, err := GitResolver{Path: dir}.Resolve(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(first.String()).To(HavePrefix(commit + UncommittedSuffix))
		Expect(strings.TrimPrefix(first.String(), commit+UncommittedSuffix)).To(HaveLen(16))

		second, err := GitResolver{Path: dir}.Resolve(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(second).To(Equal(first))

		By("changing the digest when the changes change")
		write("Dockerfile", "FROM ubuntu\n")
		third, err := GitResolver{Path: dir}.Resolve(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(third).ToNot(Equal(first))
	})

	It("fails outside a repository", func(ctx SpecContext) {
		_, err := GitResolver{Path: GinkgoT().TempDir()}.Resolve(ctx)
		Expect(err).To(HaveOccurred())
	})
})
