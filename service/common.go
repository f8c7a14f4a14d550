package service

import "fmt"

// confirm asks a yes/no question on stdin; anything but y or Y is a no.
func confirm(question string) bool {
	fmt.Print(question + " [y/N] ")
	var response string
	fmt.Scanln(&response)
	return response == "y" || response == "Y"
}

// popFlag removes "--name value" from args and returns the value.
func popFlag(args []string, name string) ([]string, string, bool) {
	for i := 0; i < len(args); i++ {
		if args[i] == name && i+1 < len(args) {
			value := args[i+1]
			rest := append(append([]string{}, args[:i]...), args[i+2:]...)
			return rest, value, true
		}
	}
	return args, "", false
}

// popBool removes a bare "--name" switch from args.
func popBool(args []string, name string) ([]string, bool) {
	for i, arg := range args {
		if arg == name {
			return append(append([]string{}, args[:i]...), args[i+1:]...), true
		}
	}
	return args, false
}
