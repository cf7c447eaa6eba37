//
// Copyright 2015 Gregory Trubetskoy. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// kinetic-agent pulls probing jobs from a kinetic server, runs them
// and submits the results.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/kineticmon/kinetic/agent"
)

const Version = "0.1.0"

func main() {
	var (
		cfgPath string
		version bool
	)
	flag.StringVar(&cfgPath, "c", agent.DefaultConfigPath, "path to config file")
	flag.BoolVar(&version, "version", false, "Print version and exit")
	flag.Parse()

	if version {
		fmt.Printf("kinetic-agent version: %v\n", Version)
		return
	}

	log.SetPrefix(fmt.Sprintf("[%d] ", os.Getpid()))

	cfg, err := agent.Load(cfgPath)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	agent.New(cfg).Run(ctx)
	log.Printf("Agent exiting.")
}
