package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/fsnotify/fsnotify"

	dbg "github.com/orizon-lang/orizon/internal/debug"
	"github.com/orizon-lang/orizon/internal/debug/gdbserver"
)

func main() {
	var (
		addr    string
		dbgJSON string
		attach  bool
		watch   bool
	)

	flag.StringVar(&addr, "addr", ":9000", "listen address for RSP (tcp)")
	flag.StringVar(&dbgJSON, "debug-json", "", "path to ProgramDebugInfo JSON")
	flag.BoolVar(&attach, "attach", false, "start with a simulated inferior attached, so _M JIT allocations mirror into it")
	flag.BoolVar(&watch, "watch", false, "reload --debug-json into the running server whenever it changes on disk")
	flag.Parse()

	if dbgJSON == "" {
		fmt.Fprintln(os.Stderr, "--debug-json is required")
		os.Exit(2)
	}

	info, err := loadDebugInfo(dbgJSON)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load debug json failed:", err)
		os.Exit(1)
	}

	srv := gdbserver.NewServer(info)
	if attach {
		srv.AttachInferior()
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "listen failed:", err)
		os.Exit(1)
	}

	fmt.Println("RSP server listening on", ln.Addr().String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if watch {
		w, err := watchDebugJSON(ctx, dbgJSON, srv)
		if err != nil {
			fmt.Fprintln(os.Stderr, "watch debug json failed:", err)
			os.Exit(1)
		}
		defer w.Close()
	}

	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				select {
				case <-ctx.Done():
					return
				default:
				}

				continue
			}

			go func(conn net.Conn) {
				_ = srv.HandleConn(conn)
			}(c)
		}
	}()

	<-ctx.Done()
	_ = ln.Close()
	fmt.Println("RSP server stopped")
}

func loadDebugInfo(path string) (dbg.ProgramDebugInfo, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return dbg.ProgramDebugInfo{}, err
	}

	return dbg.Deserialize(b)
}

// watchDebugJSON watches path for writes and reloads srv's debug info in
// place so a long-running session picks up a recompiled line table without
// restarting the listener or losing breakpoints.
func watchDebugJSON(ctx context.Context, path string, srv *gdbserver.Server) (*fsnotify.Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := w.Add(path); err != nil {
		w.Close()
		return nil, err
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}

				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}

				info, err := loadDebugInfo(path)
				if err != nil {
					fmt.Fprintln(os.Stderr, "reload debug json failed:", err)
					continue
				}

				srv.ReloadDebugInfo(info)
				fmt.Println("reloaded debug json from", path)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}

				fmt.Fprintln(os.Stderr, "watch error:", err)
			}
		}
	}()

	return w, nil
}
