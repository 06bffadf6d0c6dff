package main

import (
	"github.com/arefkin/peercall/internal/config"
	"github.com/arefkin/peercall/internal/server"
)

func main() {
	cfg := config.Load()
	srv := server.NewServer(cfg)
	defer srv.Stop()
	srv.Run()
}
