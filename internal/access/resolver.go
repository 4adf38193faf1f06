// Package access resolves the caller's role for a pod from the cluster's
// authorization API and looks up the pod's address.
package access

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	authorizationv1 "k8s.io/api/authorization/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/jmxgate/jmxgate/internal/acl"
	"github.com/jmxgate/jmxgate/internal/kube"
)

// Sentinel errors. Callers match them with errors.Is.
var (
	// ErrDenied means the review answered and refused access.
	ErrDenied = errors.New("access denied")
	// ErrReview means the review call itself failed.
	ErrReview = errors.New("access review failed")
	// ErrPodResolution means the pod address could not be determined.
	ErrPodResolution = errors.New("pod resolution failed")
)

// DeniedError carries the reason the authorization API gave.
type DeniedError struct {
	Verb      string
	Namespace string
	Pod       string
	Reason    string
}

func (e *DeniedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s pods/%s in namespace %s is not allowed", e.Verb, e.Pod, e.Namespace)
	}
	return e.Reason
}

func (e *DeniedError) Unwrap() error { return ErrDenied }

// Verbs checked against the pod.
const (
	VerbUpdate = "update"
	VerbGet    = "get"
)

// Mode selects the authorization API.
type Mode string

const (
	// ModeKubernetes uses authorization.k8s.io/v1 SelfSubjectAccessReview.
	ModeKubernetes Mode = "kubernetes"
	// ModeOpenShift uses the legacy authorization.openshift.io/v1
	// SubjectAccessReview, which answers with a top-level "allowed".
	ModeOpenShift Mode = "openshift"
)

// ParseMode validates a configured mode. Empty means ModeKubernetes.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeKubernetes:
		return ModeKubernetes, nil
	case ModeOpenShift:
		return ModeOpenShift, nil
	}
	return "", fmt.Errorf("unknown authorization mode %q (want kubernetes or openshift)", s)
}

// Review is the outcome of one access review.
type Review struct {
	Allowed bool
	Reason  string
}

// Resolver maps access reviews to gateway roles.
type Resolver struct {
	clients kube.Provider
	mode    Mode
	logger  *slog.Logger
}

// NewResolver returns a resolver issuing reviews with per-caller clients.
func NewResolver(clients kube.Provider, mode Mode, logger *slog.Logger) *Resolver {
	if mode == "" {
		mode = ModeKubernetes
	}
	return &Resolver{clients: clients, mode: mode, logger: logger}
}

// Grant is the outcome of admitting a caller to a pod.
type Grant struct {
	Role  acl.Role
	PodIP string
}

// Resolve returns RoleAdmin when the caller may update the pod, RoleViewer
// when it may only get it, and a *DeniedError otherwise. The pod address is
// looked up with the same client once a role is granted.
func (r *Resolver) Resolve(ctx context.Context, token, namespace, pod string) (Grant, error) {
	cs, err := r.client(token)
	if err != nil {
		return Grant{}, err
	}
	role, err := r.role(ctx, cs, namespace, pod)
	if err != nil {
		return Grant{}, err
	}
	ip, err := podIP(ctx, cs, namespace, pod)
	if err != nil {
		return Grant{}, err
	}
	return Grant{Role: role, PodIP: ip}, nil
}

// Authorize checks a single verb and resolves the pod address. It is used
// when RBAC is disabled and only update access is required, so the returned
// grant carries no role.
func (r *Resolver) Authorize(ctx context.Context, token, verb, namespace, pod string) (Grant, error) {
	cs, err := r.client(token)
	if err != nil {
		return Grant{}, err
	}
	res, err := r.review(ctx, cs, verb, namespace, pod)
	if err != nil {
		return Grant{}, err
	}
	if !res.Allowed {
		r.logger.Info("pod access denied", "verb", verb, "namespace", namespace, "pod", pod, "reason", res.Reason)
		return Grant{}, &DeniedError{Verb: verb, Namespace: namespace, Pod: pod, Reason: res.Reason}
	}
	ip, err := podIP(ctx, cs, namespace, pod)
	if err != nil {
		return Grant{}, err
	}
	return Grant{PodIP: ip}, nil
}

func (r *Resolver) role(ctx context.Context, cs kubernetes.Interface, namespace, pod string) (acl.Role, error) {
	update, err := r.review(ctx, cs, VerbUpdate, namespace, pod)
	if err != nil {
		return "", err
	}
	if update.Allowed {
		return acl.RoleAdmin, nil
	}

	get, err := r.review(ctx, cs, VerbGet, namespace, pod)
	if err != nil {
		return "", err
	}
	if get.Allowed {
		return acl.RoleViewer, nil
	}

	r.logger.Info("pod access denied", "namespace", namespace, "pod", pod, "reason", get.Reason)
	return "", &DeniedError{Verb: VerbGet, Namespace: namespace, Pod: pod, Reason: get.Reason}
}

// podIP returns status.podIP of the pod, read with the caller's identity.
func podIP(ctx context.Context, cs kubernetes.Interface, namespace, pod string) (string, error) {
	p, err := cs.CoreV1().Pods(namespace).Get(ctx, pod, metav1.GetOptions{})
	if err != nil {
		return "", fmt.Errorf("%w: get pod %s/%s: %v", ErrPodResolution, namespace, pod, err)
	}
	if p.Status.PodIP == "" {
		return "", fmt.Errorf("%w: pod %s/%s has no IP", ErrPodResolution, namespace, pod)
	}
	return p.Status.PodIP, nil
}

func (r *Resolver) client(token string) (kubernetes.Interface, error) {
	cs, err := r.clients.ForToken(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReview, err)
	}
	return cs, nil
}

func (r *Resolver) review(ctx context.Context, cs kubernetes.Interface, verb, namespace, pod string) (Review, error) {
	var (
		res Review
		err error
	)
	switch r.mode {
	case ModeOpenShift:
		res, err = openShiftReview(ctx, cs, verb, namespace, pod)
	default:
		res, err = selfSubjectAccessReview(ctx, cs, verb, namespace, pod)
	}
	if err != nil {
		r.logger.Warn("access review failed", "verb", verb, "namespace", namespace, "pod", pod, "error", err)
		return Review{}, fmt.Errorf("%w: %s pods/%s: %v", ErrReview, verb, pod, err)
	}
	r.logger.Debug("access review", "verb", verb, "namespace", namespace, "pod", pod, "allowed", res.Allowed)
	return res, nil
}

func selfSubjectAccessReview(ctx context.Context, cs kubernetes.Interface, verb, namespace, pod string) (Review, error) {
	review := &authorizationv1.SelfSubjectAccessReview{
		Spec: authorizationv1.SelfSubjectAccessReviewSpec{
			ResourceAttributes: &authorizationv1.ResourceAttributes{
				Verb:      verb,
				Resource:  "pods",
				Name:      pod,
				Namespace: namespace,
			},
		},
	}
	res, err := cs.AuthorizationV1().SelfSubjectAccessReviews().Create(ctx, review, metav1.CreateOptions{})
	if err != nil {
		return Review{}, err
	}
	return Review{Allowed: res.Status.Allowed, Reason: res.Status.Reason}, nil
}

// openShiftSAR is the legacy OpenShift SubjectAccessReview. Without user and
// groups it is evaluated for the caller.
type openShiftSAR struct {
	Kind         string `json:"kind"`
	APIVersion   string `json:"apiVersion"`
	Namespace    string `json:"namespace"`
	Verb         string `json:"verb"`
	Resource     string `json:"resource"`
	ResourceName string `json:"resourceName"`
}

type openShiftSARResponse struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

const openShiftSARPath = "/apis/authorization.openshift.io/v1/subjectaccessreviews"

func openShiftReview(ctx context.Context, cs kubernetes.Interface, verb, namespace, pod string) (Review, error) {
	body, err := json.Marshal(openShiftSAR{
		Kind:         "SubjectAccessReview",
		APIVersion:   "authorization.openshift.io/v1",
		Namespace:    namespace,
		Verb:         verb,
		Resource:     "pods",
		ResourceName: pod,
	})
	if err != nil {
		return Review{}, err
	}
	raw, err := cs.AuthorizationV1().RESTClient().Post().
		AbsPath(openShiftSARPath).
		SetHeader("Content-Type", "application/json").
		Body(body).
		DoRaw(ctx)
	if err != nil {
		return Review{}, err
	}
	var res openShiftSARResponse
	if err := json.Unmarshal(raw, &res); err != nil {
		return Review{}, fmt.Errorf("decode review: %w", err)
	}
	return Review{Allowed: res.Allowed, Reason: res.Reason}, nil
}
