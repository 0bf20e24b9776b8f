// Command client drives a gorpc server for manual and load testing.
// Usage: client <host> <port> [echo <K> <M> | data | ping]
// ping is the default subcommand. echo forks K child processes, each
// issuing M calls, to exercise concurrency. Exit code is 0 on success,
// 1 on connect failure.
package main

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/vkardon/proto-rpc/common/gorpc"
)

const echoWorkerEnvVar = "GORPC_CLIENT_ECHO_WORKER"

func main() {
	if os.Getenv(echoWorkerEnvVar) == "1" {
		runEchoWorker()
		return
	}

	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "usage: client <host> <port> [echo <K> <M> | data | ping]")
		os.Exit(1)
	}
	host := os.Args[1]
	port, err := strconv.Atoi(os.Args[2])
	if err != nil {
		fmt.Fprintf(os.Stderr, "client: invalid port %q\n", os.Args[2])
		os.Exit(1)
	}

	sub := "ping"
	if len(os.Args) > 3 {
		sub = os.Args[3]
	}

	switch sub {
	case "echo":
		k, m := 4, 10
		if len(os.Args) > 4 {
			k, _ = strconv.Atoi(os.Args[4])
		}
		if len(os.Args) > 5 {
			m, _ = strconv.Atoi(os.Args[5])
		}
		os.Exit(runEcho(host, port, k, m))
	case "data":
		os.Exit(runOneShot(host, port, gorpc.TypeData, []byte("data")))
	default:
		os.Exit(runOneShot(host, port, gorpc.TypePing, nil))
	}
}

func dial(host string, port int) (*gorpc.GoRPCClient, int) {
	cli := gorpc.NewGoRPCClient()
	if err := cli.Connect(host, port); err != nil {
		log.Printf("client: connect: %v", err)
		return nil, 1
	}
	return cli, 0
}

func runOneShot(host string, port int, msgType int32, payload []byte) int {
	cli, code := dial(host, port)
	if cli == nil {
		return code
	}
	defer cli.Destroy()

	resp, status, err := cli.CallBytes(msgType, payload, 10*time.Second)
	if err != nil || status != gorpc.StatusSuccess {
		log.Printf("client: call: status=%v err=%v", status, err)
		return 1
	}
	log.Printf("client: reply: %q", resp)
	return 0
}

// runEcho forks K child processes of this same binary, each running
// runEchoWorker to issue M echo calls.
func runEcho(host string, port int, k, m int) int {
	exe, err := os.Executable()
	if err != nil {
		log.Printf("client: os.Executable: %v", err)
		return 1
	}

	var wg sync.WaitGroup
	results := make([]int, k)
	for i := 0; i < k; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			cmd := exec.Command(exe, host, strconv.Itoa(port), "echo", strconv.Itoa(m))
			cmd.Env = append(os.Environ(), echoWorkerEnvVar+"=1")
			cmd.Stdout = os.Stdout
			cmd.Stderr = os.Stderr
			if err := cmd.Run(); err != nil {
				results[idx] = 1
			}
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		if r != 0 {
			return 1
		}
	}
	return 0
}

// runEchoWorker is what a forked child process actually executes: issue M
// echo calls against host:port (os.Args[1:3]) sequentially on one
// connection, argv[4] carries M.
func runEchoWorker() {
	if len(os.Args) < 5 {
		os.Exit(1)
	}
	host := os.Args[1]
	port, err := strconv.Atoi(os.Args[2])
	if err != nil {
		os.Exit(1)
	}
	m, err := strconv.Atoi(os.Args[4])
	if err != nil {
		os.Exit(1)
	}

	cli, code := dial(host, port)
	if cli == nil {
		os.Exit(code)
	}
	defer cli.Destroy()

	for i := 0; i < m; i++ {
		payload := []byte(fmt.Sprintf("echo-%d", i))
		resp, status, err := cli.CallBytes(gorpc.TypeEcho, payload, 10*time.Second)
		if err != nil || status != gorpc.StatusSuccess || string(resp) != string(payload) {
			log.Printf("client: echo worker: call %d failed: status=%v err=%v", i, status, err)
			os.Exit(1)
		}
	}
}
