package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/bluelink-stack/bluelink-go/pkg/central"
	"github.com/bluelink-stack/bluelink-go/pkg/driver"
)

// repl is the interactive command loop. It remembers the devices surfaced
// by the last scan (addressable by index) and a currently selected device.
type repl struct {
	co  *central.Coordinator
	cfg Config
	rl  *readline.Instance

	devices []*central.LinkSession
	current *central.LinkSession

	watchCancel func()
}

func newREPL(co *central.Coordinator, cfg Config) (*repl, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "blink> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("readline: %w", err)
	}
	return &repl{co: co, cfg: cfg, rl: rl}, nil
}

// Close releases the terminal.
func (r *repl) Close() {
	r.stopWatch()
	r.rl.Close()
}

// Run reads and executes commands until quit or EOF.
func (r *repl) Run() error {
	for {
		line, err := r.rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		parts := strings.Fields(strings.TrimSpace(line))
		if len(parts) == 0 {
			continue
		}
		cmd, args := strings.ToLower(parts[0]), parts[1:]

		switch cmd {
		case "help", "?":
			r.printHelp()
		case "scan":
			r.cmdScan(args)
		case "stop":
			r.co.StopDiscovery()
		case "devices", "ls":
			r.cmdDevices()
		case "use", "select":
			r.cmdUse(args)
		case "connect":
			r.cmdConnect(args)
		case "disconnect":
			r.cmdDisconnect()
		case "groups":
			r.cmdGroups()
		case "items":
			r.cmdItems(args)
		case "read":
			r.cmdRead(args)
		case "write":
			r.cmdWrite(args, true)
		case "writecmd":
			r.cmdWrite(args, false)
		case "notify":
			r.cmdNotify(args)
		case "watch":
			r.cmdWatch(args)
		case "unwatch":
			r.stopWatch()
		case "status":
			r.cmdStatus()
		case "quit", "exit", "q":
			return nil
		default:
			fmt.Printf("unknown command %q (try 'help')\n", cmd)
		}
	}
}

func (r *repl) printHelp() {
	fmt.Print(`
Commands:
  scan [seconds]          discover devices (default from config)
  stop                    stop an active scan
  devices                 list devices from the last scan
  use <n|id>              select a device
  connect [n|id]          connect (selects the device)
  disconnect              disconnect the selected device
  groups                  discover and list services
  items <group>           discover and list characteristics of a service
  read <item>             read a characteristic
  write <item> <hex>      acknowledged write
  writecmd <item> <hex>   write without response
  notify <item> on|off    toggle notifications
  watch <item>            print values as they arrive (unwatch to stop)
  status                  driver and connection status
  quit                    exit

Devices are addressed by scan index or identifier; groups and items by any
unique UUID prefix.
`)
}

func (r *repl) cmdScan(args []string) {
	seconds := r.cfg.ScanSeconds
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			fmt.Println("usage: scan [seconds]")
			return
		}
		seconds = n
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(seconds)*time.Second)
	defer cancel()

	ds, err := r.co.Discover(ctx, driver.ScanFilter{})
	if err != nil {
		fmt.Println("scan failed:", err)
		return
	}

	r.devices = r.devices[:0]
	fmt.Printf("scanning for %ds...\n", seconds)
	for sess := range ds.Results() {
		r.devices = append(r.devices, sess)
		fmt.Printf("  [%d] %s  %q  rssi=%d\n",
			len(r.devices)-1, sess.ID(), sess.Name().Current(), sess.Advertisement().RSSI)
	}
	fmt.Printf("scan finished: %d device(s)\n", len(r.devices))
}

func (r *repl) cmdDevices() {
	if len(r.devices) == 0 {
		fmt.Println("no devices; run 'scan' first")
		return
	}
	for i, sess := range r.devices {
		marker := " "
		if sess == r.current {
			marker = "*"
		}
		fmt.Printf("%s [%d] %s  %q  %s\n",
			marker, i, sess.ID(), sess.Name().Current(), sess.State().Current())
	}
}

func (r *repl) cmdUse(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: use <n|id>")
		return
	}
	sess := r.findDevice(args[0])
	if sess == nil {
		return
	}
	r.current = sess
	fmt.Printf("using %s\n", sess.ID())
}

func (r *repl) cmdConnect(args []string) {
	sess := r.current
	if len(args) == 1 {
		sess = r.findDevice(args[0])
	}
	if sess == nil {
		fmt.Println("usage: connect <n|id> (or 'use' a device first)")
		return
	}
	r.current = sess

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := sess.WaitConnect(ctx); err != nil {
		fmt.Println("connect failed:", err)
		return
	}
	fmt.Printf("connected to %s\n", sess.ID())
}

func (r *repl) cmdDisconnect() {
	if r.current == nil {
		fmt.Println("no device selected")
		return
	}
	r.stopWatch()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.current.WaitDisconnect(ctx); err != nil {
		fmt.Println("disconnect:", err)
		return
	}
	fmt.Println("disconnected")
}

func (r *repl) cmdGroups() {
	if r.current == nil {
		fmt.Println("no device selected")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := r.current.DiscoverGroups(ctx); err != nil {
		fmt.Println("discovery failed:", err)
		return
	}
	for _, g := range r.current.Groups() {
		kind := "secondary"
		if g.Primary() {
			kind = "primary"
		}
		fmt.Printf("  %s  (%s, %d item(s))\n", g.UUID(), kind, len(g.Items()))
	}
}

func (r *repl) cmdItems(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: items <group>")
		return
	}
	g := r.findGroup(args[0])
	if g == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := g.DiscoverItems(ctx); err != nil {
		fmt.Println("discovery failed:", err)
		return
	}
	for _, it := range g.Items() {
		fmt.Printf("  %s  [%s]\n", it.UUID(), it.Properties())
	}
}

func (r *repl) cmdRead(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: read <item>")
		return
	}
	it := r.findItem(args[0])
	if it == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	data, err := it.Read(ctx)
	if err != nil {
		fmt.Println("read failed:", err)
		return
	}
	printValue(data)
}

func (r *repl) cmdWrite(args []string, withResponse bool) {
	if len(args) != 2 {
		fmt.Println("usage: write|writecmd <item> <hex>")
		return
	}
	it := r.findItem(args[0])
	if it == nil {
		return
	}
	data, err := hex.DecodeString(strings.TrimPrefix(args[1], "0x"))
	if err != nil {
		fmt.Println("bad hex payload:", err)
		return
	}

	if !withResponse {
		if err := it.WriteWithoutResponse(data); err != nil {
			fmt.Println("write failed:", err)
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := it.Write(ctx, data); err != nil {
		fmt.Println("write failed:", err)
		return
	}
	fmt.Println("ok")
}

func (r *repl) cmdNotify(args []string) {
	if len(args) != 2 || (args[1] != "on" && args[1] != "off") {
		fmt.Println("usage: notify <item> on|off")
		return
	}
	it := r.findItem(args[0])
	if it == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	enabled, err := it.SetNotify(ctx, args[1] == "on")
	if err != nil {
		fmt.Println("notify failed:", err)
		return
	}
	fmt.Printf("notifications %v\n", enabled)
}

func (r *repl) cmdWatch(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: watch <item>")
		return
	}
	it := r.findItem(args[0])
	if it == nil {
		return
	}
	r.stopWatch()

	sub := it.Value().Subscribe()
	id := it.UUID()
	r.watchCancel = sub.Cancel
	go func() {
		for data := range sub.C() {
			fmt.Printf("\r%s = %x\n", id, data)
			r.rl.Refresh()
		}
	}()
	fmt.Println("watching; 'unwatch' to stop")
}

func (r *repl) stopWatch() {
	if r.watchCancel != nil {
		r.watchCancel()
		r.watchCancel = nil
	}
}

func (r *repl) cmdStatus() {
	fmt.Printf("driver: %s, scanning: %t\n",
		r.co.State().Current(), r.co.Scanning().Current())
	for _, sess := range r.co.Sessions() {
		fmt.Printf("  %s  %q  %s\n", sess.ID(), sess.Name().Current(), sess.State().Current())
	}
}

// findDevice resolves a scan index or a full identifier.
func (r *repl) findDevice(arg string) *central.LinkSession {
	if n, err := strconv.Atoi(arg); err == nil {
		if n < 0 || n >= len(r.devices) {
			fmt.Println("no such device index; see 'devices'")
			return nil
		}
		return r.devices[n]
	}
	for _, sess := range r.co.Sessions() {
		if strings.EqualFold(sess.ID(), arg) {
			return sess
		}
	}
	fmt.Printf("unknown device %q\n", arg)
	return nil
}

// findGroup resolves a unique UUID prefix among the selected device's groups.
func (r *repl) findGroup(prefix string) *central.Group {
	if r.current == nil {
		fmt.Println("no device selected")
		return nil
	}
	var match *central.Group
	for _, g := range r.current.Groups() {
		if strings.HasPrefix(g.UUID().String(), strings.ToLower(prefix)) {
			if match != nil {
				fmt.Printf("ambiguous group prefix %q\n", prefix)
				return nil
			}
			match = g
		}
	}
	if match == nil {
		fmt.Printf("no group matching %q (run 'groups' first)\n", prefix)
	}
	return match
}

// findItem resolves a unique UUID prefix among the selected device's items.
func (r *repl) findItem(prefix string) *central.Item {
	if r.current == nil {
		fmt.Println("no device selected")
		return nil
	}
	var match *central.Item
	for _, g := range r.current.Groups() {
		for _, it := range g.Items() {
			if strings.HasPrefix(it.UUID().String(), strings.ToLower(prefix)) {
				if match != nil {
					fmt.Printf("ambiguous item prefix %q\n", prefix)
					return nil
				}
				match = it
			}
		}
	}
	if match == nil {
		fmt.Printf("no item matching %q (run 'items' first)\n", prefix)
	}
	return match
}

func printValue(data []byte) {
	if len(data) == 0 {
		fmt.Println("(empty)")
		return
	}
	if isPrintable(data) {
		fmt.Printf("%x  %q\n", data, data)
		return
	}
	fmt.Printf("%x\n", data)
}

func isPrintable(data []byte) bool {
	for _, b := range data {
		if b < 0x20 || b > 0x7e {
			return false
		}
	}
	return true
}
