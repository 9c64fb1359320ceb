/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// n3nd is the management daemon wiring the replay stamper, peer registry,
// supernode resolver, and slot reactor together behind a flag-parsed CLI,
// the role cmd/ptp4u/main.go plays for the teacher's own server.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/coreos/go-systemd/daemon"
	"github.com/fatih/color"
	goversion "github.com/hashicorp/go-version"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/n3n-project/n3n/internal/config"
	"github.com/n3n-project/n3n/pkg/netaddr"
	"github.com/n3n-project/n3n/pkg/reactor"
	"github.com/n3n-project/n3n/pkg/registry"
	"github.com/n3n-project/n3n/pkg/resolver"
	"github.com/n3n-project/n3n/pkg/stats"
)

// buildVersion is overridden at link time with -ldflags "-X main.buildVersion=...".
var buildVersion = "0.0.0-dev"

// minSupportedVersion is the oldest core version this daemon's management
// protocol remains compatible with, checked with go-version the way the
// teacher's firmware package compares version strings.
const minSupportedVersion = "0.1.0"

func main() {
	c := &config.Config{
		DynamicConfig: config.DynamicConfig{
			ResolveInterval:      resolver.Interval,
			ResolveCheckInterval: resolver.CheckInterval,
			ReplayJitterWindow:   time.Second,
			SlotIdleTimeout:      5 * time.Minute,
			RequestMax:           1 << 20,
		},
	}

	var supernodesFlag string
	var slotCount int
	var monitoringPort int
	var human bool
	var printVersion bool

	flag.StringVar(&c.ConfigFile, "config", "", "Path to a YAML file with dynamic settings")
	flag.StringVar(&c.Interface, "iface", "n3n0", "Name of the TAP interface (owned by an external collaborator)")
	flag.StringVar(&c.ManagementAddr, "mgmt-addr", ":5644", "host:port the slot reactor listens on (only the port is used)")
	flag.StringVar(&c.ManagementSocket, "mgmt-socket", "", "optional filesystem path for a Unix-domain management listener")
	flag.StringVar(&c.PidFile, "pidfile", "/var/run/n3nd.pid", "Pid file location")
	flag.StringVar(&c.LogLevel, "loglevel", "info", "Log level. Can be: debug, info, warning, error")
	flag.StringVar(&supernodesFlag, "supernodes", "", "comma-separated list of host:port supernode addresses")
	flag.IntVar(&slotCount, "slots", 64, "number of connection slots in the reactor's pool")
	flag.IntVar(&monitoringPort, "monitoringport", 5645, "port to serve JSON stats on")
	flag.BoolVar(&human, "human", false, "print a colorized human-readable startup banner")
	flag.BoolVar(&printVersion, "version", false, "print the daemon version and exit")
	flag.Parse()

	if printVersion {
		fmt.Println(buildVersion)
		return
	}

	v, err := goversion.NewVersion(buildVersion)
	if err != nil {
		log.Fatalf("parsing build version %q: %v", buildVersion, err)
	}
	minV, err := goversion.NewVersion(minSupportedVersion)
	if err != nil {
		log.Fatalf("parsing minimum supported version: %v", err)
	}
	if v.LessThan(minV) {
		log.Fatalf("n3nd %s is older than the minimum supported version %s", v, minV)
	}

	switch c.LogLevel {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warning":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	default:
		log.Fatalf("unrecognized log level: %v", c.LogLevel)
	}

	if c.ConfigFile != "" {
		dc, err := config.ReadDynamicConfig(c.ConfigFile)
		if err != nil {
			log.Fatal(err)
		}
		c.DynamicConfig = *dc
	}

	if err := c.CreatePidFile(); err != nil {
		log.Fatalf("writing pid file: %v", err)
	}
	defer c.DeletePidFile()

	st := stats.New()
	collector := stats.NewCollector(st)
	prometheus.MustRegister(collector)
	go func() {
		if err := stats.ListenAndServeJSON(monitoringPort, st); err != nil {
			log.Errorf("stats server exited: %v", err)
		}
	}()

	reg := registry.New(st)

	var entries []*resolver.Entry
	for _, spec := range splitNonEmpty(supernodesFlag, ",") {
		sock, err := netaddr.ResolveSupernode(spec, systemResolver{})
		if err != nil {
			log.Warningf("initial resolution of supernode %q failed, will retry: %v", spec, err)
		}
		mode := registry.ModeAdd
		peer := reg.AddOrFind(sock, nil, &mode)
		entries = append(entries, &resolver.Entry{Hostname: spec, BackRef: &peer.Sock})
	}

	res := resolver.Create(systemResolver{}, entries, st)
	defer res.Cancel()

	pool := reactor.NewPool(slotCount, c.SlotIdleTimeout, c.RequestMax, st)
	if err := listenManagement(pool, c.ManagementAddr); err != nil {
		log.Fatalf("starting management listener: %v", err)
	}
	if c.ManagementSocket != "" {
		if _, err := pool.ListenUnix(c.ManagementSocket, 0o660, -1, -1); err != nil {
			log.Fatalf("starting unix management listener: %v", err)
		}
	}
	defer pool.Close()

	if human {
		printBanner(c, len(entries), slotCount)
	}

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Warningf("sd_notify: %v", err)
	}

	runLoop(pool, res, c, st)
}

// listenManagement starts the reactor's TCP listener on the port of addr,
// which may be "host:port" or just ":port". The host part is ignored: the
// listener binds every local address.
func listenManagement(pool *reactor.Pool, addr string) error {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("parsing management address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("parsing management port %q: %w", portStr, err)
	}
	_, err = pool.ListenTCP(port)
	return err
}

// runLoop is the main goroutine: it drives the reactor's single-threaded
// event loop and, on its own schedule, asks the resolver whether fresh
// supernode sockets need publishing and reaps idle slots. Per spec.md §5
// this is the second of the two threads the core ever introduces — the
// resolver's own worker goroutine is the first.
func runLoop(pool *reactor.Pool, res *resolver.State, c *config.Config, st stats.Stats) {
	lastIdleSweep := time.Now()
	for {
		now := time.Now()
		if err := pool.RunOnce(100, now.Unix()); err != nil {
			log.Errorf("reactor: %v", err)
		}
		answerReady(pool)
		res.Check(false, now)

		if now.Sub(lastIdleSweep) >= c.SlotIdleTimeout {
			closed := pool.CloseIdle(now)
			for i := 0; i < closed; i++ {
				st.IncSlotIdleCloses()
			}
			lastIdleSweep = now
		}
	}
}

// managementACK is the minimal reply every framed management request gets:
// an empty 200 OK. Dispatching on the request's actual contents is left to
// a future management protocol; this just keeps the listener from
// accepting and parsing requests it never answers.
var managementACK = []byte("HTTP/1.0 200 OK\r\nContent-Length: 0\r\n\r\n")

// answerReady attaches managementACK to every slot holding a framed
// request, so RunOnce's next writable pass drains and recycles it.
func answerReady(pool *reactor.Pool) {
	for _, s := range pool.ReadySlots() {
		s.SetReply(managementACK, nil)
	}
}

func splitNonEmpty(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func printBanner(c *config.Config, supernodes, slots int) {
	bold := color.New(color.Bold)
	bold.Println("n3nd starting")
	fmt.Printf("  %s %s\n", color.CyanString("management:"), c.ManagementAddr)
	if c.ManagementSocket != "" {
		fmt.Printf("  %s %s\n", color.CyanString("unix socket:"), c.ManagementSocket)
	}
	fmt.Printf("  %s %d\n", color.CyanString("supernodes:"), supernodes)
	fmt.Printf("  %s %d\n", color.CyanString("slots:"), slots)
	fmt.Fprintln(os.Stderr)
}
