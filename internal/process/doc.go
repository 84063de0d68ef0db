// Package process starts and reaps formatter subprocesses.
//
// A Supervisor gives each child an ID, can cap how many run at once, and
// reaps them in the background. Process.Done is closed once the child has
// exited and exec.Cmd has finished copying its output, so callers that
// hand the command in-memory buffers may read them right after Done.
//
//	s := process.NewSupervisor(process.WithMaxProcesses(4))
//	defer s.Shutdown(2 * time.Second)
//
//	cmd := exec.Command("clang-format", "-output-replacements-xml")
//	cmd.Stdin, cmd.Stdout, cmd.Stderr = bytes.NewReader(src), &out, &diag
//
//	p, err := s.Spawn(ctx, "clang-format", cmd)
//	if err != nil {
//		return err
//	}
//	<-p.Done()
package process
