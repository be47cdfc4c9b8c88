// pcap-replay replays a captured LiDAR session against a running backend:
// it reads UDP payloads out of a pcap file and resends them to the
// backend's listen port, respecting the original packet timing.
//
// Usage:
//
//	pcap-replay -file capture.pcap -target 127.0.0.1:57000 [-port 57000] [-speed 2.0] [-loop]
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

var (
	pcapFile = flag.String("file", "", "PCAP file to replay (required)")
	target   = flag.String("target", "127.0.0.1:57000", "UDP destination address")
	udpPort  = flag.Int("port", 0, "Only replay packets captured on this UDP destination port (0 = all UDP)")
	speed    = flag.Float64("speed", 1.0, "Replay speed multiplier (1.0 = real-time)")
	loop     = flag.Bool("loop", false, "Restart from the beginning when the file ends")
)

func main() {
	flag.Parse()

	if *pcapFile == "" {
		flag.Usage()
		os.Exit(2)
	}
	if *speed <= 0 {
		*speed = 1.0
	}

	addr, err := net.ResolveUDPAddr("udp", *target)
	if err != nil {
		log.Fatalf("failed to resolve target address: %v", err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		log.Fatalf("failed to dial target: %v", err)
	}
	defer conn.Close()

	for {
		sent, err := replayOnce(conn)
		if err != nil {
			log.Fatalf("replay failed: %v", err)
		}
		log.Printf("replay complete: %d packets sent to %s (speed %.1fx)", sent, *target, *speed)
		if !*loop {
			return
		}
	}
}

// replayOnce streams the file once, pacing packets by their capture
// timestamps scaled by the speed multiplier.
func replayOnce(conn *net.UDPConn) (int, error) {
	f, err := os.Open(*pcapFile)
	if err != nil {
		return 0, fmt.Errorf("failed to open PCAP file %s: %w", *pcapFile, err)
	}
	defer f.Close()

	reader, err := pcapgo.NewReader(f)
	if err != nil {
		return 0, fmt.Errorf("failed to read PCAP header: %w", err)
	}

	sent := 0
	var lastCapture time.Time

	for {
		data, ci, err := reader.ReadPacketData()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return sent, nil
			}
			return sent, fmt.Errorf("failed to read packet: %w", err)
		}

		packet := gopacket.NewPacket(data, reader.LinkType(), gopacket.Lazy)
		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp, ok := udpLayer.(*layers.UDP)
		if !ok || len(udp.Payload) == 0 {
			continue
		}
		if *udpPort != 0 && int(udp.DstPort) != *udpPort {
			continue
		}

		if !lastCapture.IsZero() {
			delay := ci.Timestamp.Sub(lastCapture)
			if delay > 0 {
				time.Sleep(time.Duration(float64(delay) / *speed))
			}
		}
		lastCapture = ci.Timestamp

		if _, err := conn.Write(udp.Payload); err != nil {
			return sent, fmt.Errorf("failed to send packet: %w", err)
		}
		sent++

		if sent%10000 == 0 {
			log.Printf("replay progress: %d packets", sent)
		}
	}
}
