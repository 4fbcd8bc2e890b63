// Command loopwork drives the task-orchestration loop: it reads pending
// work from a task store, prompts an external AI CLI tool for each task
// in turn, and records the outcome back into the store.
package main

func main() {
	Execute()
}
