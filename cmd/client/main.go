// Interactive line client speaking nuke-wire. Thin glue over the framing
// layer: read a line, frame it, print the framed reply.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/nukekv/nukekv/internal/protocol"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:8080", "server address")
	flag.Parse()

	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect %s: %v\n", *addr, err)
		os.Exit(1)
	}
	defer conn.Close()

	fmt.Printf("Connected to %s. Type QUIT to exit.\n", *addr)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 1024), 1<<20)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		if err := protocol.WriteMessage(conn, line); err != nil {
			fmt.Fprintf(os.Stderr, "send: %v\n", err)
			return
		}
		reply, err := protocol.ReadMessage(conn, protocol.ClientMaxReply)
		if err != nil {
			fmt.Fprintf(os.Stderr, "connection closed: %v\n", err)
			return
		}
		fmt.Println(reply)

		if strings.EqualFold(strings.TrimSpace(line), "QUIT") {
			return
		}
	}
}
