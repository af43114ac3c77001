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

package healthgate

import (
	"context"
	"errors"
	"time"

	apiv1 "github.com/fleetdeck/fleetdeck/api/v1"
	"github.com/fleetdeck/fleetdeck/pkg/executor"
	"github.com/fleetdeck/fleetdeck/pkg/fleeterrors"
	"github.com/fleetdeck/fleetdeck/pkg/specs"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// healthyAfter returns a probe failing n times before succeeding
func healthyAfter(n int) (Probe, *int) {
	calls := 0
	return ProbeFunc(func(context.Context) error {
		calls++
		if calls <= n {
			return errors.New("connection refused")
		}
		return nil
	}), &calls
}

var _ = Describe("Health gate", func() {
	var (
		slept  []time.Duration
		states []State
	)

	newGate := func(probe Probe, attempts int) *Gate {
		gate := New(&apiv1.HealthCheckConfiguration{MaxAttempts: attempts, Interval: "2s"}, probe)
		gate.Sleep = func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		}
		gate.Observer = func(state State, _ int) {
			states = append(states, state)
		}
		return gate
	}

	BeforeEach(func() {
		slept = nil
		states = nil
	})

	It("is immediately healthy without a health check", func(ctx SpecContext) {
		probe, calls := healthyAfter(10)
		result := New(nil, probe).Run(ctx)
		Expect(result.State).To(Equal(StateHealthy))
		Expect(result.Attempts).To(BeZero())
		Expect(*calls).To(BeZero())
	})

	It("becomes healthy when a probe passes", func(ctx SpecContext) {
		probe, calls := healthyAfter(2)
		result := newGate(probe, 5).Run(ctx)
		Expect(result.State).To(Equal(StateHealthy))
		Expect(result.Attempts).To(Equal(3))
		Expect(*calls).To(Equal(3))
		Expect(slept).To(Equal([]time.Duration{2 * time.Second, 2 * time.Second}))
		Expect(states).To(Equal([]State{StateStarting, StatePolling, StatePolling, StateHealthy}))
		Expect(result.AsError("vm1")).ToNot(HaveOccurred())
	})

	It("becomes unhealthy when the attempts are exhausted", func(ctx SpecContext) {
		probe, calls := healthyAfter(10)
		gate := newGate(probe, 3)
		gate.CollectLogs = func(context.Context) ([]string, error) {
			return []string{"panic: boom"}, nil
		}

		result := gate.Run(ctx)
		Expect(result.State).To(Equal(StateUnhealthy))
		Expect(result.Attempts).To(Equal(3))
		Expect(*calls).To(Equal(3))
		Expect(result.Logs).To(Equal([]string{"panic: boom"}))
		Expect(states[len(states)-1]).To(Equal(StateUnhealthy))

		err := result.AsError("vm1")
		var timeout *fleeterrors.HealthCheckTimeoutError
		Expect(errors.As(err, &timeout)).To(BeTrue())
		Expect(timeout.Host).To(Equal("vm1"))
		Expect(timeout.Attempts).To(Equal(3))
		Expect(timeout.Logs).To(Equal([]string{"panic: boom"}))
	})

	It("stops probing when the context is cancelled", func() {
		ctx, cancel := context.WithCancel(context.Background())
		probe, _ := healthyAfter(10)
		gate := newGate(probe, 5)
		gate.Sleep = func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		}

		result := gate.Run(ctx)
		Expect(result.State).To(Equal(StateUnhealthy))
		Expect(result.Attempts).To(Equal(1))
		Expect(result.Err).To(MatchError(context.Canceled))
	})

	It("waits for real between probes by default", func(ctx SpecContext) {
		probe, _ := healthyAfter(1)
		gate := New(&apiv1.HealthCheckConfiguration{MaxAttempts: 2, Interval: "10ms"}, probe)
		start := time.Now()
		Expect(gate.Run(ctx).State).To(Equal(StateHealthy))
		Expect(time.Since(start)).To(BeNumerically(">=", 10*time.Millisecond))
	})
})

var _ = Describe("Command probes", func() {
	host := apiv1.Host{Address: "vm1"}

	It("passes when the command succeeds", func(ctx SpecContext) {
		var executed []string
		e := executor.New(executor.TransportFunc(
			func(_ context.Context, _ apiv1.Host, command specs.Command) (executor.Result, error) {
				executed = append(executed, command.String())
				return executor.Result{}, nil
			}))

		probe := CommandProbe{Executor: e, Host: host, Command: specs.New("docker", "exec", "app", "true")}
		Expect(probe.Probe(ctx)).To(Succeed())
		Expect(executed).To(Equal([]string{"docker exec app true"}))
	})

	It("fails when the command fails", func(ctx SpecContext) {
		e := executor.New(executor.TransportFunc(
			func(context.Context, apiv1.Host, specs.Command) (executor.Result, error) {
				return executor.Result{ExitCode: 22}, nil
			}))

		probe := CommandProbe{Executor: e, Host: host, Command: specs.New("curl", "-f", "http://localhost:3000/up")}
		Expect(errors.Is(probe.Probe(ctx), fleeterrors.ErrCommandFailed)).To(BeTrue())
	})

	It("collects the container logs", func(ctx SpecContext) {
		e := executor.New(executor.TransportFunc(
			func(context.Context, apiv1.Host, specs.Command) (executor.Result, error) {
				return executor.Result{Stdout: "starting\nlistening\n"}, nil
			}))

		logs, err := CommandLogs(e, host, specs.New("docker", "logs", "app"))(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(logs).To(Equal([]string{"starting", "listening"}))
	})
})
