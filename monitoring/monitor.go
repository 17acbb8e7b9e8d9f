// Package monitoring serves the state of running MMUs over HTTP.
package monitoring

import (
	"bytes"
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

	// Enable profiling
	_ "net/http/pprof"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/rs/xid"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/neobench/neorom/mem/vm"
	"github.com/neobench/neorom/mem/vm/mmu"
	"github.com/neobench/neorom/mem/vm/tlb"
	"github.com/neobench/neorom/monitoring/web"
)

// A Controller is an MMU that can be monitored.
type Controller interface {
	Name() string
	IsEnabled() bool
	Enable()
	Disable()
	Translate(vAddr uint32, isWrite bool) (uint32, error)
	Stats() mmu.Stats
	TableUsage() mmu.TableUsage
	TLBEntries() []tlb.Entry
}

// Monitor turns a running boot sequence into a server and allows external
// inspection and control of its MMUs.
type Monitor struct {
	portNumber int
	actualPort int

	componentsLock sync.Mutex
	components     []Controller

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar
}

// NewMonitor creates a new Monitor
func NewMonitor() *Monitor {
	return &Monitor{}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// RegisterComponent register a component to be monitored.
func (m *Monitor) RegisterComponent(c Controller) {
	m.componentsLock.Lock()
	defer m.componentsLock.Unlock()

	m.components = append(m.components, c)
}

// CreateProgressBar creates a new progress bar.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := &ProgressBar{
		ID:        xid.New().String(),
		Name:      name,
		StartTime: time.Now(),
		Total:     total,
	}

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

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

// Handler returns the router that serves the monitoring API and web page.
func (m *Monitor) Handler() http.Handler {
	r := mux.NewRouter()

	fServer := http.FileServer(web.GetAssets())
	r.HandleFunc("/api/list_components", m.listComponents)
	r.HandleFunc("/api/component/{name}", m.listComponentDetails)
	r.HandleFunc("/api/stats/{name}", m.reportStats)
	r.HandleFunc("/api/tlb/{name}", m.listTLBEntries)
	r.HandleFunc("/api/translate/{name}/{addr}", m.translate)
	r.HandleFunc("/api/enable/{name}", m.enable)
	r.HandleFunc("/api/disable/{name}", m.disable)
	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)
	r.PathPrefix("/debug/pprof/").Handler(http.DefaultServeMux)
	r.HandleFunc("/", m.serveDashboard)
	r.PathPrefix("/").Handler(fServer)

	return r
}

// StartServer starts the monitor as a web server and returns the port it
// listens on.
func (m *Monitor) StartServer() int {
	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	dieOnErr(err)

	m.actualPort = listener.Addr().(*net.TCPAddr).Port

	fmt.Fprintf(
		os.Stderr,
		"Monitoring boot sequence with http://localhost:%d\n",
		m.actualPort)

	handler := m.Handler()
	go func() {
		err := http.Serve(listener, handler)
		dieOnErr(err)
	}()

	return m.actualPort
}

// OpenBrowser opens the monitoring page in the default browser. The server
// must be started first.
func (m *Monitor) OpenBrowser() error {
	if m.actualPort == 0 {
		return errors.New("monitoring server is not started")
	}

	return browser.OpenURL(fmt.Sprintf("http://localhost:%d", m.actualPort))
}

func (m *Monitor) listComponents(w http.ResponseWriter, _ *http.Request) {
	m.componentsLock.Lock()
	names := make([]string, 0, len(m.components))
	for _, c := range m.components {
		names = append(names, c.Name())
	}
	m.componentsLock.Unlock()

	writeJSON(w, names)
}

func (m *Monitor) listComponentDetails(w http.ResponseWriter, r *http.Request) {
	component := m.findComponentOr404(w, mux.Vars(r)["name"])
	if component == nil {
		return
	}

	if locker, ok := component.(sync.Locker); ok {
		locker.Lock()
		defer locker.Unlock()
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(component)
	serializer.SetMaxDepth(1)
	err := serializer.Serialize(w)

	dieOnErr(err)
}

type statsRsp struct {
	Name          string `json:"name"`
	Enabled       bool   `json:"enabled"`
	TLBHits       uint64 `json:"tlb_hits"`
	TLBMisses     uint64 `json:"tlb_misses"`
	PageFaults    uint64 `json:"page_faults"`
	PointerTables int    `json:"pointer_tables"`
	PageTables    int    `json:"page_tables"`
	MappedPages   int    `json:"mapped_pages"`
}

func makeStatsRsp(c Controller) statsRsp {
	stats := c.Stats()
	usage := c.TableUsage()

	return statsRsp{
		Name:          c.Name(),
		Enabled:       c.IsEnabled(),
		TLBHits:       stats.TLBHits,
		TLBMisses:     stats.TLBMisses,
		PageFaults:    stats.PageFaults,
		PointerTables: usage.PointerTables,
		PageTables:    usage.PageTables,
		MappedPages:   usage.MappedPages,
	}
}

func (m *Monitor) reportStats(w http.ResponseWriter, r *http.Request) {
	component := m.findComponentOr404(w, mux.Vars(r)["name"])
	if component == nil {
		return
	}

	writeJSON(w, makeStatsRsp(component))
}

type tlbEntryRsp struct {
	VPage      uint32 `json:"vpage"`
	PPage      uint32 `json:"ppage"`
	Attributes string `json:"attributes"`
	Modified   bool   `json:"modified"`
}

func (m *Monitor) listTLBEntries(w http.ResponseWriter, r *http.Request) {
	component := m.findComponentOr404(w, mux.Vars(r)["name"])
	if component == nil {
		return
	}

	entries := component.TLBEntries()
	rsp := make([]tlbEntryRsp, 0, len(entries))
	for _, e := range entries {
		rsp = append(rsp, tlbEntryRsp{
			VPage:      e.VPage,
			PPage:      e.PPage,
			Attributes: e.Attributes.String(),
			Modified:   e.Modified,
		})
	}

	writeJSON(w, rsp)
}

type translateRsp struct {
	VAddr     uint32 `json:"vaddr"`
	PAddr     uint32 `json:"paddr"`
	Fault     bool   `json:"fault"`
	Unhandled bool   `json:"unhandled,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (m *Monitor) translate(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	component := m.findComponentOr404(w, vars["name"])
	if component == nil {
		return
	}

	vAddr, err := strconv.ParseUint(vars["addr"], 0, 32)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "Error: %s", err)
		return
	}

	isWrite := r.URL.Query().Get("write") == "1"

	rsp := translateRsp{VAddr: uint32(vAddr)}
	pAddr, err := component.Translate(uint32(vAddr), isWrite)
	if err != nil {
		rsp.Fault = errors.Is(err, vm.ErrTranslationFault)
		rsp.Unhandled = errors.Is(err, vm.ErrPageFaultUnhandled)
		rsp.Error = err.Error()
	} else {
		rsp.PAddr = pAddr
	}

	writeJSON(w, rsp)
}

func (m *Monitor) enable(w http.ResponseWriter, r *http.Request) {
	component := m.findComponentOr404(w, mux.Vars(r)["name"])
	if component == nil {
		return
	}

	component.Enable()
	writeJSON(w, makeStatsRsp(component))
}

func (m *Monitor) disable(w http.ResponseWriter, r *http.Request) {
	component := m.findComponentOr404(w, mux.Vars(r)["name"])
	if component == nil {
		return
	}

	component.Disable()
	writeJSON(w, makeStatsRsp(component))
}

func (m *Monitor) findComponentOr404(
	w http.ResponseWriter,
	name string,
) Controller {
	m.componentsLock.Lock()
	defer m.componentsLock.Unlock()

	for _, c := range m.components {
		if c.Name() == name {
			return c
		}
	}

	w.WriteHeader(http.StatusNotFound)
	_, err := w.Write([]byte("Component not found"))
	dieOnErr(err)

	return nil
}

func (m *Monitor) serveDashboard(w http.ResponseWriter, _ *http.Request) {
	m.componentsLock.Lock()
	names := make([]string, 0, len(m.components))
	for _, c := range m.components {
		names = append(names, c.Name())
	}
	m.componentsLock.Unlock()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	err := web.Dashboard{Components: names, Refresh: time.Second}.Render(w)
	dieOnErr(err)
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	statuses := make([]ProgressStatus, 0, len(m.progressBars))
	for _, bar := range m.progressBars {
		statuses = append(statuses, bar.Status())
	}

	writeJSON(w, statuses)
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

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	dieOnErr(err)

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
