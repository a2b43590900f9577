package service

import (
	"fmt"
	"sync"

	"github.com/tauraamui/framecache/pkg/log"
	"github.com/tauraamui/framecache/pkg/service/process"
)

var watchComposition = process.WatchComposition

// SetupProcesses prepares a file watch for every loaded composition.
func (s *server) SetupProcesses() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.loaded {
		proc := process.New(process.Settings{
			WaitForShutdownMsg: fmt.Sprintf("Stopping watching composition [%s]...", l.path),
			Process: watchComposition(l.comp, l.path, func(err error) {
				if err != nil {
					return
				}
				log.Info("Composition [%s] changed on disk", l.path)
				s.invalidate(l)
			}),
		})
		proc.Setup()
		s.processes = append(s.processes, proc)
	}
}

func (s *server) RunProcesses() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, proc := range s.processes {
		proc.Start()
	}
}

func (s *server) shutdownProcesses() {
	s.mu.Lock()
	procs := s.processes
	s.processes = nil
	s.mu.Unlock()

	wg := sync.WaitGroup{}
	wg.Add(len(procs))
	for _, proc := range procs {
		go func(wg *sync.WaitGroup, proc process.Process) {
			proc.Stop()
			proc.Wait()
			wg.Done()
		}(&wg, proc)
	}
	wg.Wait()
}
