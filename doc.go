// Package gtsam implements the linear core of a factor-graph smoothing and
// mapping engine: Gaussian factors in Jacobian and Hessian form, sparse
// block-structured elimination into Bayes nets and Bayes trees, and an
// incremental smoother that folds new measurements into an existing tree
// without re-eliminating the whole system.
//
// The nonlinear side of the problem stays outside this package. Callers
// linearize their measurement functions into JacobianFactor or HessianFactor
// values, hand the package an elimination ordering, and retract the solved
// delta back onto their manifold. Variable identity is a dense integer Key;
// mapping symbolic names to keys is the caller's job.
package gtsam
