// Command wakeproxy is an on-demand reverse proxy that starts backend
// workloads — Docker containers or Proxmox LXC instances — on first
// traffic, forwards HTTP and WebSocket connections once they're up,
// and stops them again after they go idle.
package main

func main() {
	Execute()
}
