package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

func main() {
	server := flag.String("server", "http://localhost:3210", "CareerPilot server URL")
	flag.Parse()

	fmt.Println("CareerPilot CLI")
	fmt.Printf("Server: %s\n", *server)
	fmt.Println("Type a goal to run a workflow. Prefix with /chat for a single-turn chat.")
	fmt.Println("Commands: /state, /agents, /reset, exit")
	fmt.Println("---")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\n> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		switch {
		case input == "exit" || input == "quit":
			fmt.Println("Bye!")
			return
		case input == "/state":
			fetchState(*server)
		case input == "/agents":
			fetchAgents(*server)
		case input == "/reset":
			postJSON(*server, "/api/reset", nil)
			fmt.Println("Orchestrator reset.")
		case strings.HasPrefix(input, "/chat "):
			sendChat(*server, strings.TrimPrefix(input, "/chat "))
		default:
			runGoal(*server, input)
		}
	}
}

func runGoal(server, goal string) {
	fmt.Println("Planning and executing, this can take a while...")
	start := time.Now()

	body, status, err := postJSON(server, "/api/goal", map[string]interface{}{"goal": goal})
	if err != nil {
		printError("request failed: %v", err)
		return
	}
	if status != http.StatusOK {
		printError("server returned %d: %s", status, string(body))
		return
	}

	var result struct {
		Results []struct {
			TaskID    string `json:"task_id"`
			AgentRole string `json:"agent_role"`
			Result    string `json:"result"`
		} `json:"results"`
		AgentsUsed     []string `json:"agents_used"`
		TasksCompleted int      `json:"tasks_completed"`
		TotalTasks     int      `json:"total_tasks"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		printError("parse response: %v", err)
		return
	}

	fmt.Printf("Done in %s: %d/%d tasks, agents: %s\n\n",
		time.Since(start).Round(time.Second),
		result.TasksCompleted, result.TotalTasks,
		strings.Join(result.AgentsUsed, ", "))
	for _, r := range result.Results {
		fmt.Printf("[%s / %s]\n%s\n\n", r.TaskID, r.AgentRole, r.Result)
	}
}

func sendChat(server, message string) {
	body, status, err := postJSON(server, "/api/chat", map[string]interface{}{"message": message})
	if err != nil {
		printError("request failed: %v", err)
		return
	}
	if status != http.StatusOK {
		printError("server returned %d: %s", status, string(body))
		return
	}
	var resp struct {
		Reply string `json:"reply"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		printError("parse response: %v", err)
		return
	}
	fmt.Println(resp.Reply)
}

func fetchState(server string) {
	resp, err := http.Get(server + "/api/state")
	if err != nil {
		printError("fetch state: %v", err)
		return
	}
	defer resp.Body.Close()

	var state struct {
		Status string `json:"status"`
		Tasks  []struct {
			ID        string `json:"id"`
			Status    string `json:"status"`
			AgentRole string `json:"agent_role"`
		} `json:"tasks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		printError("parse state: %v", err)
		return
	}
	fmt.Printf("Status: %s\n", state.Status)
	for _, t := range state.Tasks {
		fmt.Printf("  %-12s %-12s %s\n", t.ID, t.Status, t.AgentRole)
	}
}

func fetchAgents(server string) {
	resp, err := http.Get(server + "/api/agents")
	if err != nil {
		printError("fetch agents: %v", err)
		return
	}
	defer resp.Body.Close()

	var agents []struct {
		Role         string   `json:"role"`
		Name         string   `json:"name"`
		Capabilities []string `json:"capabilities"`
		Active       bool     `json:"active"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&agents); err != nil {
		printError("parse agents: %v", err)
		return
	}
	for _, a := range agents {
		marker := " "
		if a.Active {
			marker = "*"
		}
		fmt.Printf("%s %-18s %s: %s\n", marker, a.Role, a.Name, strings.Join(a.Capabilities, ", "))
	}
}

func postJSON(server, path string, payload interface{}) ([]byte, int, error) {
	b, _ := json.Marshal(payload)
	resp, err := http.Post(server+path, "application/json", bytes.NewReader(b))
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	return buf.Bytes(), resp.StatusCode, nil
}

func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
}
