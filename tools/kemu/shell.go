package main

import (
	"strconv"
	"strings"
)

// process is the system call surface the shell runs against.
type process interface {
	Read() byte
	Print(s string)
	Sbrk(incr uint32) uint32
	Reboot()
}

// allocator is the user heap the shell exercises.
type allocator interface {
	Allocate(size uint32) uint32
	Release(ptr uint32)
	BlockSize(ptr uint32) uint32
}

const (
	shellPrompt  = "> "
	maxLineLen   = 78
	shellHelpMsg = "commands: help, echo <text>, alloc <bytes>, free <addr>, brk, reboot, exit\n"
)

// shell is a minimal line oriented user program. It reads keys through the
// read system call, echoes them and executes one command per line.
type shell struct {
	proc process
	heap allocator
}

// run executes commands until exit is entered.
func (sh *shell) run() {
	sh.proc.Print("gravos user shell; type help for a list of commands\n")
	for {
		sh.proc.Print(shellPrompt)
		if !sh.exec(sh.readLine()) {
			return
		}
	}
}

func (sh *shell) readLine() string {
	var line []byte
	for {
		ch := sh.proc.Read()
		switch ch {
		case '\n':
			sh.proc.Print("\n")
			return string(line)
		case '\b':
			if len(line) != 0 {
				line = line[:len(line)-1]
				sh.proc.Print("\b \b")
			}
		default:
			if len(line) < maxLineLen {
				line = append(line, ch)
				sh.proc.Print(string(ch))
			}
		}
	}
}

// exec runs a command line. It returns false if the shell should exit.
func (sh *shell) exec(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return true
	}

	switch cmd, args := fields[0], fields[1:]; cmd {
	case "help":
		sh.proc.Print(shellHelpMsg)
	case "echo":
		sh.proc.Print(strings.Join(args, " ") + "\n")
	case "alloc":
		size, err := parseArg(args)
		if err != nil {
			sh.proc.Print("usage: alloc <bytes>\n")
			break
		}
		if ptr := sh.heap.Allocate(size); ptr != 0 {
			sh.proc.Print("allocated " + strconv.FormatUint(uint64(sh.heap.BlockSize(ptr)), 10) +
				" bytes at 0x" + strconv.FormatUint(uint64(ptr), 16) + "\n")
		} else {
			sh.proc.Print("out of memory\n")
		}
	case "free":
		ptr, err := parseArg(args)
		if err != nil {
			sh.proc.Print("usage: free <addr>\n")
			break
		}
		sh.heap.Release(ptr)
	case "brk":
		sh.proc.Print("program break at 0x" + strconv.FormatUint(uint64(sh.proc.Sbrk(0)), 16) + "\n")
	case "reboot":
		sh.proc.Reboot()
	case "exit":
		return false
	default:
		sh.proc.Print(cmd + ": unknown command\n")
	}
	return true
}

func parseArg(args []string) (uint32, error) {
	if len(args) != 1 {
		return 0, strconv.ErrSyntax
	}
	v, err := strconv.ParseUint(args[0], 0, 32)
	return uint32(v), err
}
