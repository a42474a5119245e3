// Package monitoring serves the state of a running simulation over HTTP.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"sync"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/sarchlab/cachesim/mem/cache"
	"github.com/sarchlab/cachesim/sim"
)

// Snapshot is the latest state published by the replay loop.
type Snapshot struct {
	Records      uint64           `json:"records"`
	Loads        uint64           `json:"loads"`
	Stores       uint64           `json:"stores"`
	Skipped      uint64           `json:"skipped"`
	Instructions uint64           `json:"instructions"`
	Cycles       uint64           `json:"cycles"`
	Cache        cache.Statistics `json:"cache"`
	Done         bool             `json:"done"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// Monitor can turn a simulation into a server and allows external monitoring
// of the simulation.
type Monitor struct {
	portNumber  int
	idGenerator sim.IDGenerator
	server      *http.Server
	url         string

	geometryLock sync.Mutex
	geometry     *cache.Geometry

	snapshotLock sync.Mutex
	snapshot     Snapshot

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar
}

// NewMonitor creates a new Monitor
func NewMonitor() *Monitor {
	return &Monitor{
		idGenerator: sim.NewSequentialIDGenerator("bar"),
	}
}

// minPortNumber is the lowest port the monitoring server may be pinned to.
const minPortNumber = 1000

// WithPortNumber sets the port number of the monitor. Ports below 1000 fall
// back to a random port.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber < minPortNumber {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// RegisterGeometry sets the cache shape reported by /api/config.
func (m *Monitor) RegisterGeometry(g cache.Geometry) {
	m.geometryLock.Lock()
	defer m.geometryLock.Unlock()

	m.geometry = &g
}

// UpdateSnapshot replaces the published statistics.
func (m *Monitor) UpdateSnapshot(s Snapshot) {
	m.snapshotLock.Lock()
	defer m.snapshotLock.Unlock()

	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now()
	}

	m.snapshot = s
}

// LatestSnapshot returns the last published statistics.
func (m *Monitor) LatestSnapshot() Snapshot {
	m.snapshotLock.Lock()
	defer m.snapshotLock.Unlock()

	return m.snapshot
}

// CreateProgressBar creates a new progress bar.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	bar := &ProgressBar{
		ID:        m.idGenerator.Generate(),
		Name:      name,
		StartTime: time.Now(),
		Total:     total,
	}

	m.progressBars = append(m.progressBars, bar)

	return bar
}

// CompleteProgressBar removes a bar to be shown on the webpage.
func (m *Monitor) CompleteProgressBar(pb *ProgressBar) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	newBars := make([]*ProgressBar, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		if b != pb {
			newBars = append(newBars, b)
		}
	}

	m.progressBars = newBars
}

// Handler returns the router that serves the monitoring API.
func (m *Monitor) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/", m.index).Methods(http.MethodGet)
	r.HandleFunc("/api/progress", m.listProgressBars).Methods(http.MethodGet)
	r.HandleFunc("/api/stats", m.latestStats).Methods(http.MethodGet)
	r.HandleFunc("/api/config", m.cacheConfig).Methods(http.MethodGet)
	r.HandleFunc("/api/resource", m.listResources).Methods(http.MethodGet)
	r.HandleFunc("/api/profile", m.collectProfile).Methods(http.MethodGet)

	return r
}

func (m *Monitor) listenAddress() string {
	if m.portNumber >= minPortNumber {
		return "localhost:" + strconv.Itoa(m.portNumber)
	}

	return "localhost:0"
}

// StartServer starts the monitor as a web server and returns its URL.
func (m *Monitor) StartServer() (string, error) {
	listener, err := net.Listen("tcp", m.listenAddress())
	if err != nil {
		return "", fmt.Errorf("starting monitoring server: %w", err)
	}

	m.url = fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)
	m.server = &http.Server{
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	fmt.Fprintf(os.Stderr, "Monitoring simulation with %s\n", m.url)

	go func() {
		err := m.server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			dieOnErr(err)
		}
	}()

	return m.url, nil
}

// URL returns the address of a started server, or an empty string.
func (m *Monitor) URL() string {
	return m.url
}

// OpenInBrowser opens the server address with the system browser.
func (m *Monitor) OpenInBrowser() error {
	if m.url == "" {
		return errors.New("monitoring server is not started")
	}

	return browser.OpenURL(m.url)
}

// StopServer shuts the server down.
func (m *Monitor) StopServer(ctx context.Context) error {
	if m.server == nil {
		return nil
	}

	return m.server.Shutdown(ctx)
}

func (m *Monitor) index(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	_, err := fmt.Fprintln(w,
		"cachesim monitor: /api/progress /api/stats /api/config "+
			"/api/resource /api/profile")
	dieOnErr(err)
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	states := make([]progressBarState, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		states = append(states, b.state())
	}
	m.progressBarsLock.Unlock()

	writeJSON(w, states)
}

func (m *Monitor) latestStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, m.LatestSnapshot())
}

func (m *Monitor) cacheConfig(w http.ResponseWriter, _ *http.Request) {
	m.geometryLock.Lock()
	g := m.geometry
	m.geometryLock.Unlock()

	if g == nil {
		http.Error(w, "no cache registered", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	serializer := goseth.NewSerializer()
	serializer.SetRoot(g)
	serializer.SetMaxDepth(1)
	err := serializer.Serialize(w)

	dieOnErr(err)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	process, err := process.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := process.CPUPercent()
	dieOnErr(err)

	memorySize, err := process.MemoryInfo()
	dieOnErr(err)

	rsp := resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	}

	writeJSON(w, rsp)
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	time.Sleep(time.Second)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	writeJSON(w, prof)
}

func writeJSON(w http.ResponseWriter, v any) {
	bytes, err := json.Marshal(v)
	dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")

	_, err = w.Write(bytes)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
