// Command ctl is the operator's command-line client for coordinatord's
// HTTP API: job queue inspection and payout report generation from a
// terminal, without standing up the operator dashboard.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"reflect"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spknetwork/storage-coordinator/api"
	"github.com/spknetwork/storage-coordinator/build"
)

var (
	// addr is the host/port coordinatord's operator API is listening on.
	addr string
	// token is the bearer session token used for validator-only routes.
	token string
	// jobOwner filters "ctl jobs list" by Hive username.
	jobOwner string
)

// Exit codes, inspired by sysexits.h.
const (
	exitCodeGeneral = 1
	exitCodeUsage   = 64
)

func non2xx(code int) bool {
	return code < 200 || code > 299
}

func decodeError(resp *http.Response) error {
	var apiErr api.Error
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil {
		return err
	}
	return apiErr
}

func normalizedURL(call string) string {
	if host, port, _ := net.SplitHostPort(addr); host == "" {
		addr = net.JoinHostPort("localhost", port)
	}
	return "http://" + addr + call
}

func authHeader(req *http.Request) {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// apiGet issues a GET request and returns the response if its status is
// 2xx; otherwise it decodes and returns the API's error.
func apiGet(call string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, normalizedURL(call), nil)
	if err != nil {
		return nil, err
	}
	authHeader(req)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, errors.New("no response from coordinatord")
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, errors.New("API call not recognized: " + call)
	}
	if non2xx(resp.StatusCode) {
		err := decodeError(resp)
		resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

// apiPost issues a POST request with a JSON body and returns the
// response if its status is 2xx.
func apiPost(call string, body []byte) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodPost, normalizedURL(call), strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	authHeader(req)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, errors.New("no response from coordinatord")
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, errors.New("API call not recognized: " + call)
	}
	if non2xx(resp.StatusCode) {
		err := decodeError(resp)
		resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

func getAPI(call string, obj interface{}) error {
	resp, err := apiGet(call)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(obj)
}

func postAPI(call string, body []byte, obj interface{}) error {
	resp, err := apiPost(call, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(obj)
}

// wrap checks that a cobra command was passed exactly as many string
// arguments as fn declares, then calls fn with them.
func wrap(fn interface{}) func(*cobra.Command, []string) {
	fnVal, fnType := reflect.ValueOf(fn), reflect.TypeOf(fn)
	if fnType.Kind() != reflect.Func {
		panic("wrapped function has wrong type signature")
	}
	for i := 0; i < fnType.NumIn(); i++ {
		if fnType.In(i).Kind() != reflect.String {
			panic("wrapped function has wrong type signature")
		}
	}
	return func(cmd *cobra.Command, args []string) {
		if len(args) != fnType.NumIn() {
			cmd.UsageFunc()(cmd)
			os.Exit(exitCodeUsage)
		}
		argVals := make([]reflect.Value, fnType.NumIn())
		for i := range args {
			argVals[i] = reflect.ValueOf(args[i])
		}
		fnVal.Call(argVals)
	}
}

func die(args ...interface{}) {
	fmt.Fprintln(os.Stderr, args...)
	os.Exit(exitCodeGeneral)
}

func main() {
	root := &cobra.Command{
		Use:   os.Args[0],
		Short: "storage-coordinator ctl v" + build.Version,
		Long:  "storage-coordinator ctl v" + build.Version,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Usage()
		},
	}

	root.AddCommand(nodesCmd)
	nodesCmd.AddCommand(nodesListCmd)
	nodesListCmd.Flags().StringVarP(&nodeStatus, "status", "s", "", "filter by node status")

	root.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsListCmd, jobsCreateCmd, queueStatsCmd)
	jobsListCmd.Flags().StringVarP(&jobOwner, "owner", "o", "", "filter by Hive username")

	root.AddCommand(payoutCmd)
	payoutCmd.AddCommand(payoutGenerateCmd, payoutExportCmd)

	root.PersistentFlags().StringVarP(&addr, "addr", "a", "localhost:9980", "coordinatord operator API host/port")
	root.PersistentFlags().StringVarP(&token, "token", "t", "", "validator session bearer token")

	if err := root.Execute(); err != nil {
		os.Exit(exitCodeUsage)
	}
}
